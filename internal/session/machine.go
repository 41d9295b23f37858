package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"tools.zach/dev/richcord/internal/discord"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Conn is one Discord connection handle. The machine creates a fresh Conn
// for every login attempt and never reuses one after it fails or closes.
// *discord.Client implements it.
type Conn interface {
	Login(ctx context.Context, clientID string) error
	SetActivity(ctx context.Context, activity *discord.Activity) error
	ClearActivity(ctx context.Context) error
	Close() error
	Subscribe(h discord.Handler) discord.Subscription
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// State is the connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "disconnected":
		*s = StateDisconnected
	case "connecting":
		*s = StateConnecting
	case "connected":
		*s = StateConnected
	default:
		return fmt.Errorf("unknown state %q", b)
	}
	return nil
}

// ///////////////////////////////////////////////
// Machine
// ///////////////////////////////////////////////

// Machine owns the Discord connection and its lifecycle: login retries,
// recovery from unexpected drops, and teardown.
//
// Every field is guarded by mu, which is never held across I/O or waits.
// After each blocking step the machine re-reads disconnectRequested and the
// epoch, so a Disconnect that lands mid-connect wins.
type Machine struct {
	opts Options
	log  *slog.Logger

	// onReconnect runs after a timer-driven reconnect succeeds.
	onReconnect func(ctx context.Context)

	mu                  sync.Mutex
	state               State
	clientID            string
	disconnectRequested bool
	attempts            int
	since               time.Time
	conn                Conn
	sub                 discord.Subscription
	// epoch changes on every Connect and Disconnect. Work started under an
	// older epoch must not touch the session.
	epoch uint64
	// timer is the single pending reconnect. timerGen invalidates callbacks
	// from timers that were stopped too late.
	timer       Timer
	timerGen    uint64
	cancelRetry context.CancelFunc
}

// NewMachine creates a disconnected machine.
func NewMachine(opts Options) *Machine {
	opts = opts.withDefaults()
	return &Machine{
		opts: opts,
		log:  opts.Logger.With("component", "session"),
	}
}

// Connect logs in as clientID, retrying up to MaxAttempts times. It
// returns ErrAborted if Disconnect interrupts it, and a connect_failed
// *Error once the attempts run out. The failure is also notified.
func (m *Machine) Connect(ctx context.Context, clientID string) error {
	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.clientID = clientID
	m.attempts = 0
	m.disconnectRequested = false
	ctx, cancel := context.WithCancel(ctx)
	m.cancelRetry = cancel
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()
	defer cancel()

	return m.connect(ctx, clientID, epoch)
}

func (m *Machine) connect(ctx context.Context, clientID string, epoch uint64) error {
	tries := 0
	op := func() (struct{}, error) {
		if m.aborted(epoch) {
			return struct{}{}, backoff.Permanent(ErrAborted)
		}
		err := m.attempt(ctx, clientID, epoch)
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, ErrAborted) {
			return struct{}{}, backoff.Permanent(err)
		}

		tries++
		m.mu.Lock()
		m.attempts++
		m.mu.Unlock()
		connectAttempts.WithLabelValues("failure").Inc()
		m.log.Warn("discord login failed", "attempt", tries, "max_attempts", m.opts.MaxAttempts, "error", err)
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(newLinearBackOff(m.opts.RetryDelay, m.opts.RetryMaxDelay)),
		backoff.WithMaxTries(uint(m.opts.MaxAttempts)),
		// MaxAttempts alone bounds the loop, whatever the delay.
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return nil
	}

	m.mu.Lock()
	if m.abortedLocked(epoch) || errors.Is(err, ErrAborted) {
		m.mu.Unlock()
		m.log.Info("connect aborted by disconnect", "client_id", clientID)
		return ErrAborted
	}
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	e := newError(CodeConnectFailed, fmt.Sprintf("failed to connect after %d attempts", tries), err)
	m.log.Error("giving up on discord login", "client_id", clientID, "error", e)
	m.notify(Event{Kind: EventError, ClientID: clientID, Error: e})
	return e
}

// attempt performs one login on a fresh handle and installs it on success.
func (m *Machine) attempt(ctx context.Context, clientID string, epoch uint64) error {
	conn := m.opts.NewConn()

	// Subscribe before login so a drop right after READY is not missed.
	lost := make(chan error, 1)
	sub := conn.Subscribe(func(ev discord.Event) {
		switch ev.Kind {
		case discord.EventReady:
			m.log.Debug("discord ready", "client_id", clientID)
		case discord.EventDisconnected:
			select {
			case lost <- ev.Err:
			default:
			}
			m.drop(conn, ev.Err)
		}
	})

	loginCtx, cancel := m.commandContext(ctx)
	err := conn.Login(loginCtx, clientID)
	cancel()
	if err != nil {
		sub.Unsubscribe()
		_ = conn.Close()
		return err
	}

	m.mu.Lock()
	if m.abortedLocked(epoch) {
		m.mu.Unlock()
		sub.Unsubscribe()
		_ = conn.Close()
		return ErrAborted
	}
	m.conn, m.sub = conn, sub
	m.attempts = 0
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	connectAttempts.WithLabelValues("success").Inc()
	m.log.Info("connected to discord", "client_id", clientID)
	m.notify(Event{Kind: EventConnected, ClientID: clientID})

	// The handle may have died between READY and installation.
	select {
	case cause := <-lost:
		m.drop(conn, cause)
	default:
	}
	return nil
}

// drop handles the loss of conn. Signals from a handle that is no longer
// current, or that arrive while a disconnect is in progress, are ignored.
func (m *Machine) drop(conn Conn, cause error) {
	m.mu.Lock()
	if conn == nil || m.conn != conn || m.disconnectRequested {
		m.mu.Unlock()
		return
	}
	sub, clientID := m.sub, m.clientID
	m.conn, m.sub = nil, nil
	m.setStateLocked(StateDisconnected)
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	sub.Unsubscribe()
	_ = conn.Close()

	m.log.Warn("discord connection lost", "client_id", clientID, "reconnect_in", m.opts.ReconnectDelay, "error", cause)
	m.notify(Event{Kind: EventDisconnected, ClientID: clientID, Error: newError(CodeDisconnected, "connection lost", cause)})
}

// scheduleReconnectLocked arms the reconnect timer, replacing any pending
// one. The caller must hold m.mu.
func (m *Machine) scheduleReconnectLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timerGen++
	gen := m.timerGen
	m.timer = m.opts.AfterFunc(m.opts.ReconnectDelay, func() { m.reconnect(gen) })
	reconnectsScheduled.Inc()
}

func (m *Machine) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.timerGen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	if m.state != StateDisconnected || m.clientID == "" || m.disconnectRequested {
		m.mu.Unlock()
		return
	}
	clientID, epoch := m.clientID, m.epoch
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelRetry = cancel
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()
	defer cancel()

	m.log.Info("reconnecting to discord", "client_id", clientID)
	if err := m.connect(ctx, clientID, epoch); err != nil {
		m.mu.Lock()
		if !m.abortedLocked(epoch) && m.state == StateDisconnected {
			m.scheduleReconnectLocked()
		}
		m.mu.Unlock()
		return
	}

	if m.onReconnect != nil {
		m.onReconnect(ctx)
	}
}

// Disconnect tears the session down: it cancels any pending reconnect or
// in-flight connect, clears the remote activity, and closes the handle.
// Teardown errors are logged, not returned.
func (m *Machine) Disconnect(ctx context.Context) {
	m.mu.Lock()
	m.disconnectRequested = true
	m.epoch++
	epoch := m.epoch
	m.timerGen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancelRetry != nil {
		m.cancelRetry()
		m.cancelRetry = nil
	}
	conn, sub := m.conn, m.sub
	m.conn, m.sub = nil, nil
	m.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if conn != nil {
		cctx, cancel := m.commandContext(ctx)
		if err := conn.ClearActivity(cctx); err != nil {
			m.log.Debug("clearing activity during disconnect", "error", err)
		}
		cancel()
		if err := conn.Close(); err != nil {
			m.log.Warn("closing discord connection", "error", err)
		}
		m.log.Info("disconnected from discord")
	}

	m.mu.Lock()
	if m.epoch == epoch {
		m.setStateLocked(StateDisconnected)
		m.clientID = ""
		m.attempts = 0
		m.disconnectRequested = false
	}
	m.mu.Unlock()
}

// ///////////////////////////////////////////////
// Accessors
// ///////////////////////////////////////////////

// Snapshot is a consistent read of the machine's fields.
type Snapshot struct {
	State    State
	ClientID string
	Attempts int
	Since    time.Time
}

// Snapshot returns the current state without side effects.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, ClientID: m.clientID, Attempts: m.attempts, Since: m.since}
}

// active returns the current handle when connected.
func (m *Machine) active() (Conn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.conn == nil {
		return nil, false
	}
	return m.conn, true
}

// current reports whether conn is still the connected handle.
func (m *Machine) current(conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected && m.conn == conn
}

func (m *Machine) aborted(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.abortedLocked(epoch)
}

func (m *Machine) abortedLocked(epoch uint64) bool {
	return m.disconnectRequested || m.epoch != epoch
}

func (m *Machine) setStateLocked(s State) {
	m.state = s
	if s == StateConnected {
		m.since = time.Now()
	} else {
		m.since = time.Time{}
	}
	connectionState.Set(float64(s))
}

func (m *Machine) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.CommandTimeout > 0 {
		return context.WithTimeout(ctx, m.opts.CommandTimeout)
	}
	return context.WithCancel(ctx)
}

func (m *Machine) notify(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	m.opts.Notifier.Notify(ev)
}
