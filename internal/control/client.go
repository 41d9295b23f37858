package control

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"strings"

	"tools.zach/dev/richcord/internal/bridge"
	"tools.zach/dev/richcord/internal/presence"
	"tools.zach/dev/richcord/internal/session"
)

var (
	// ErrAddressInUse is returned by Listen when another daemon already
	// owns the address.
	ErrAddressInUse = errors.New("control address in use")

	// ErrDaemonNotRunning is returned by the client when nothing answers
	// on the control address.
	ErrDaemonNotRunning = errors.New("richcord daemon is not running")
)

// Client talks to a running daemon.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the daemon listening on address.
func NewClient(address string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return Dial(ctx, address)
		},
		DisableKeepAlives: true,
	}
	return newClient("http://richcord", &http.Client{Transport: transport})
}

func newClient(base string, hc *http.Client) *Client {
	return &Client{base: strings.TrimRight(base, "/"), http: hc}
}

// Initialize connects the daemon's session as clientID.
func (c *Client) Initialize(ctx context.Context, clientID string) error {
	return c.command(ctx, http.MethodPost, "/v1/session", InitializeRequest{ClientID: clientID})
}

// SetPresence applies desc.
func (c *Client) SetPresence(ctx context.Context, desc presence.Description) error {
	return c.command(ctx, http.MethodPut, "/v1/presence", desc)
}

// ClearPresence removes the current presence.
func (c *Client) ClearPresence(ctx context.Context) error {
	return c.command(ctx, http.MethodDelete, "/v1/presence", nil)
}

// Disconnect ends the daemon's session.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.command(ctx, http.MethodDelete, "/v1/session", nil)
}

// Status fetches the session status.
func (c *Client) Status(ctx context.Context) (session.Status, error) {
	var st session.Status
	resp, err := c.do(ctx, http.MethodGet, "/v1/status", nil)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("status: unexpected HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decoding status: %w", err)
	}
	return st, nil
}

// Events streams session events to fn until ctx is done or the daemon
// closes the stream. A non-nil error from fn stops the stream and is
// returned.
func (c *Client) Events(ctx context.Context, fn func(session.Event) error) error {
	resp, err := c.do(ctx, http.MethodGet, "/v1/events", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("events: unexpected HTTP %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxBodyBytes*4)
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var ev session.Event
			if err := json.Unmarshal(data.Bytes(), &ev); err != nil {
				return fmt.Errorf("decoding event: %w", err)
			}
			data.Reset()
			if err := fn(ev); err != nil {
				return err
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	err = scanner.Err()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Client) command(ctx context.Context, method, path string, body any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reply bridge.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("decoding reply (HTTP %d): %w", resp.StatusCode, err)
	}
	return reply.Err()
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if (errors.As(err, &opErr) && opErr.Op == "dial") || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrDaemonNotRunning, err)
		}
		return nil, err
	}
	return resp, nil
}
