// Package discord provides a client for Discord's local RPC socket, enabling
// Rich Presence updates via the SET_ACTIVITY command.
//
// A [Client] is single-use: it is logged in once, serves commands until the
// socket goes away, and is then discarded. Callers that need to reconnect
// create a fresh Client. Socket discovery is platform-specific and lives in
// conn_unix.go and conn_windows.go.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

var (
	// ErrNotConnected is returned when an operation requires an active connection.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionClosed wraps the cause when the socket goes away while
	// the client is logged in.
	ErrConnectionClosed = errors.New("connection closed")

	// errClientUsed is returned by Login on a client that was already logged in.
	errClientUsed = errors.New("discord client already used")
)

// Error is an error reported by Discord, either as an ERROR event or as the
// payload of a close frame.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("discord error %d: %s", e.Code, e.Message)
}

// ///////////////////////////////////////////////
// Data Types
// ///////////////////////////////////////////////

// ActivityType selects the verb Discord shows in front of the activity name.
type ActivityType int

const (
	ActivityPlaying   ActivityType = 0
	ActivityListening ActivityType = 2
	ActivityWatching  ActivityType = 3
	ActivityCompeting ActivityType = 5
)

// Button represents a clickable button in a Discord Rich Presence activity.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Timestamps holds the start timestamp for an activity.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
}

// Assets holds image keys and tooltip text for an activity.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// Activity represents a Discord Rich Presence activity.
type Activity struct {
	Type       ActivityType `json:"type,omitempty"`
	Details    string       `json:"details,omitempty"`
	State      string       `json:"state,omitempty"`
	Timestamps *Timestamps  `json:"timestamps,omitempty"`
	Assets     *Assets      `json:"assets,omitempty"`
	Buttons    []Button     `json:"buttons,omitempty"`
}

// ///////////////////////////////////////////////
// Events
// ///////////////////////////////////////////////

// EventKind identifies a connection signal.
type EventKind int

const (
	// EventReady is emitted once Discord has accepted the handshake.
	EventReady EventKind = iota + 1
	// EventDisconnected is emitted when the socket goes away without Close
	// being called. It fires at most once per Client.
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a connection signal delivered to subscribers.
type Event struct {
	Kind EventKind
	// Err is the cause of an EventDisconnected. It wraps ErrConnectionClosed.
	Err error
}

// Handler receives connection signals. Handlers run on the client's read
// goroutine and must not block.
type Handler func(Event)

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	// Unsubscribe removes the handler. It is safe to call more than once
	// and from within the handler itself.
	Unsubscribe()
}

type subscription struct {
	c  *Client
	id uint64
}

func (s *subscription) Unsubscribe() {
	s.c.mu.Lock()
	delete(s.c.handlers, s.id)
	s.c.mu.Unlock()
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client manages one connection to Discord's IPC socket.
type Client struct {
	// dial opens the raw socket. It is replaced in tests.
	dial func(context.Context) (net.Conn, error)

	// writeMu serializes frame writes between commands and pong replies.
	writeMu sync.Mutex

	// mu protects every field below.
	mu sync.Mutex
	// conn is the socket, set once Login succeeds.
	conn net.Conn
	// nonce is a monotonically increasing counter used to tag each command frame.
	nonce uint64
	// pending maps outstanding command nonces to their reply channels.
	pending map[string]chan reply
	// handlers holds the current subscribers keyed by subscription id.
	handlers    map[uint64]Handler
	nextHandler uint64
	// closing is set by Close and suppresses EventDisconnected.
	closing bool
	// closed is set once the socket is gone, for whatever reason.
	closed bool
}

type command struct {
	Cmd   string `json:"cmd"`
	Args  any    `json:"args"`
	Nonce string `json:"nonce"`
}

type response struct {
	Cmd   string          `json:"cmd"`
	Evt   string          `json:"evt"`
	Nonce string          `json:"nonce"`
	Data  json.RawMessage `json:"data"`
}

type reply struct {
	resp response
	err  error
}

type activityArgs struct {
	PID      int       `json:"pid"`
	Activity *Activity `json:"activity"`
}

// NewClient creates an unconnected client.
func NewClient() *Client {
	return &Client{
		dial:     dialIPC,
		pending:  make(map[string]chan reply),
		handlers: make(map[uint64]Handler),
	}
}

// Subscribe registers h for connection signals until the returned
// subscription is cancelled.
func (c *Client) Subscribe(h Handler) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextHandler++
	c.handlers[c.nextHandler] = h
	return &subscription{c: c, id: c.nextHandler}
}

// Login connects to Discord and authenticates as the given application.
// It returns once Discord has answered the handshake with READY. A rejected
// handshake is reported as an *Error.
func (c *Client) Login(ctx context.Context, clientID string) error {
	c.mu.Lock()
	if c.conn != nil || c.closing || c.closed {
		c.mu.Unlock()
		return errClientUsed
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	// Unblock the handshake reads when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	err = handshake(conn, clientID)
	if !stop() {
		conn.Close()
		return ctx.Err()
	}
	if err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		conn.Close()
		return ErrConnectionClosed
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	c.emit(Event{Kind: EventReady})
	return nil
}

// SetActivity sends a SET_ACTIVITY command and waits for Discord to
// acknowledge it.
func (c *Client) SetActivity(ctx context.Context, activity *Activity) error {
	_, err := c.sendCommand(ctx, "SET_ACTIVITY", activityArgs{PID: os.Getpid(), Activity: activity})
	return err
}

// ClearActivity sends a SET_ACTIVITY command with a null activity.
func (c *Client) ClearActivity(ctx context.Context) error {
	_, err := c.sendCommand(ctx, "SET_ACTIVITY", activityArgs{PID: os.Getpid()})
	return err
}

// Close tears the connection down. No EventDisconnected is emitted for a
// connection closed this way. Close does not clear the activity; Discord
// drops it together with the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Connected reports whether the client is logged in and its socket is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed && !c.closing
}

// ///////////////////////////////////////////////
// Internals
// ///////////////////////////////////////////////

// handshake sends the initial handshake frame and waits for READY.
func handshake(conn net.Conn, clientID string) error {
	payload, err := json.Marshal(map[string]any{
		"v":         1,
		"client_id": clientID,
	})
	if err != nil {
		return fmt.Errorf("marshaling handshake: %w", err)
	}
	if err := WriteFrame(conn, OpHandshake, payload); err != nil {
		return fmt.Errorf("writing handshake: %w", err)
	}

	for {
		opcode, data, err := DecodeFrame(conn)
		if err != nil {
			return fmt.Errorf("reading handshake response: %w", err)
		}

		switch opcode {
		case OpClose:
			return fmt.Errorf("handshake rejected: %w", decodeError(data))
		case OpPing:
			if err := WriteFrame(conn, OpPong, data); err != nil {
				return fmt.Errorf("writing pong: %w", err)
			}
		case OpFrame:
			var resp response
			if err := json.Unmarshal(data, &resp); err != nil {
				return fmt.Errorf("parsing handshake response: %w", err)
			}
			switch resp.Evt {
			case "READY":
				return nil
			case "ERROR":
				return fmt.Errorf("handshake rejected: %w", decodeError(resp.Data))
			}
		default:
			return fmt.Errorf("unexpected handshake response opcode: %d", opcode)
		}
	}
}

// decodeError turns an error payload into an *Error, keeping the raw text
// when it does not parse.
func decodeError(data []byte) error {
	var e Error
	if err := json.Unmarshal(data, &e); err != nil || (e.Code == 0 && e.Message == "") {
		return &Error{Message: string(data)}
	}
	return &e
}

// readLoop reads frames until the socket fails, routing command replies to
// their waiters.
func (c *Client) readLoop(conn net.Conn) {
	for {
		opcode, data, err := DecodeFrame(conn)
		if err != nil {
			c.fail(fmt.Errorf("%w: %w", ErrConnectionClosed, err))
			return
		}

		switch opcode {
		case OpFrame:
			c.dispatch(data)
		case OpPing:
			c.writeMu.Lock()
			_ = WriteFrame(conn, OpPong, data)
			c.writeMu.Unlock()
		case OpClose:
			c.fail(fmt.Errorf("%w: %w", ErrConnectionClosed, decodeError(data)))
			return
		}
	}
}

func (c *Client) dispatch(data []byte) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return
	}

	if resp.Nonce != "" {
		c.mu.Lock()
		ch := c.pending[resp.Nonce]
		delete(c.pending, resp.Nonce)
		c.mu.Unlock()
		if ch != nil {
			ch <- reply{resp: resp}
		}
		return
	}

	if resp.Evt == "READY" {
		c.emit(Event{Kind: EventReady})
	}
}

// fail marks the connection gone, releases every waiter, and notifies
// subscribers unless Close caused it.
func (c *Client) fail(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	intentional := c.closing
	pending := c.pending
	c.pending = make(map[string]chan reply)
	c.mu.Unlock()

	conn.Close()
	for _, ch := range pending {
		ch <- reply{err: cause}
	}
	if !intentional {
		c.emit(Event{Kind: EventDisconnected, Err: cause})
	}
}

func (c *Client) emit(ev Event) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (c *Client) forget(nonce string) {
	c.mu.Lock()
	delete(c.pending, nonce)
	c.mu.Unlock()
}

// sendCommand writes a command frame and waits for the reply carrying the
// same nonce.
func (c *Client) sendCommand(ctx context.Context, cmd string, args any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.conn == nil || c.closed || c.closing {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.nonce++
	nonce := strconv.FormatUint(c.nonce, 10)
	ch := make(chan reply, 1)
	c.pending[nonce] = ch
	conn := c.conn
	c.mu.Unlock()

	payload, err := json.Marshal(command{Cmd: cmd, Args: args, Nonce: nonce})
	if err != nil {
		c.forget(nonce)
		return nil, fmt.Errorf("marshaling command: %w", err)
	}

	c.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	err = WriteFrame(conn, OpFrame, payload)
	_ = conn.SetWriteDeadline(time.Time{})
	c.writeMu.Unlock()
	if err != nil {
		c.forget(nonce)
		return nil, fmt.Errorf("writing command: %w", err)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.resp.Evt == "ERROR" {
			return nil, decodeError(r.resp.Data)
		}
		return r.resp.Data, nil
	case <-ctx.Done():
		c.forget(nonce)
		return nil, ctx.Err()
	}
}
