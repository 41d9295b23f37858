// Package session manages the single Rich Presence session of the process:
// the connection state machine in machine.go and the presence operations
// layered on top of it in manager.go.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tools.zach/dev/richcord/internal/presence"
)

// Status is a point-in-time view of the session.
type Status struct {
	Connected    bool                  `json:"connected"`
	State        State                 `json:"state"`
	ClientID     string                `json:"clientId,omitempty"`
	Presence     *presence.Description `json:"presence,omitempty"`
	Since        time.Time             `json:"since,omitzero"`
	SessionStart time.Time             `json:"sessionStart"`
	Attempts     int                   `json:"attempts"`
}

// Manager exposes the session operations. It keeps the last presence that
// Discord accepted and re-applies it after a reconnect.
type Manager struct {
	machine *Machine
	builder presence.Builder
	limiter *rate.Limiter
	notify  Notifier
	log     *slog.Logger
	start   time.Time

	// opMu serializes Initialize calls. Disconnect does not take it so it
	// can interrupt a connect in progress.
	opMu sync.Mutex

	mu   sync.Mutex
	last *presence.Description
}

// NewManager creates a manager whose session start is now.
func NewManager(opts Options) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		machine: NewMachine(opts),
		builder: opts.Builder,
		limiter: rate.NewLimiter(opts.UpdateLimit, opts.UpdateBurst),
		notify:  opts.Notifier,
		log:     opts.Logger.With("component", "session"),
		start:   time.Now(),
	}
	m.machine.onReconnect = m.replay
	return m
}

// Initialize connects as clientID. It is a no-op when already connected
// with the same ID; a different ID replaces the current session.
func (m *Manager) Initialize(ctx context.Context, clientID string) error {
	if clientID == "" {
		return &Error{Code: CodeConnectFailed, Message: "client ID is required"}
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if snap := m.machine.Snapshot(); snap.State == StateConnected && snap.ClientID == clientID {
		m.log.Debug("already connected", "client_id", clientID)
		return nil
	}

	m.teardown(ctx)
	return m.machine.Connect(ctx, clientID)
}

// UpdatePresence renders desc and sends it. It fails with ErrNotConnected
// before a session is connected. A send that fails because the connection
// dropped starts the reconnect cycle and returns a disconnected error.
func (m *Manager) UpdatePresence(ctx context.Context, desc presence.Description) error {
	conn, ok := m.machine.active()
	if !ok {
		presenceUpdates.WithLabelValues("not_connected").Inc()
		return ErrNotConnected
	}

	act, err := m.builder.Build(desc, m.start)
	if err != nil {
		e := AsError(err)
		presenceUpdates.WithLabelValues("invalid").Inc()
		m.emit(Event{Kind: EventError, Error: e})
		return e
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return newError(CodeSendFailed, "presence update cancelled", err)
	}

	cctx, cancel := m.machine.commandContext(ctx)
	err = conn.SetActivity(cctx, act)
	cancel()
	if err != nil {
		if IsDisconnect(err) {
			presenceUpdates.WithLabelValues("disconnected").Inc()
			m.machine.drop(conn, err)
			return newError(CodeDisconnected, "connection lost while updating presence", err)
		}
		e := newError(sendErrorCode(err), "failed to update presence", err)
		presenceUpdates.WithLabelValues("failure").Inc()
		m.log.Warn("presence update failed", "error", err)
		m.emit(Event{Kind: EventError, Error: e})
		return e
	}

	// A Disconnect or new Initialize that landed during the send owns the
	// session now; its teardown already forgot the presence.
	m.mu.Lock()
	if !m.machine.current(conn) {
		m.mu.Unlock()
		presenceUpdates.WithLabelValues("not_connected").Inc()
		m.log.Debug("session ended during presence update")
		return ErrNotConnected
	}
	m.last = &desc
	m.mu.Unlock()

	presenceUpdates.WithLabelValues("success").Inc()
	m.log.Debug("presence applied", "details", act.Details, "state", act.State)
	m.emit(Event{Kind: EventPresenceApplied, Activity: act})
	return nil
}

// ClearPresence removes the activity from the profile while staying
// connected.
func (m *Manager) ClearPresence(ctx context.Context) error {
	conn, ok := m.machine.active()
	if !ok {
		return ErrNotConnected
	}

	cctx, cancel := m.machine.commandContext(ctx)
	err := conn.ClearActivity(cctx)
	cancel()
	if err != nil {
		if IsDisconnect(err) {
			m.machine.drop(conn, err)
			return newError(CodeDisconnected, "connection lost while clearing presence", err)
		}
		return newError(sendErrorCode(err), "failed to clear presence", err)
	}

	m.mu.Lock()
	m.last = nil
	m.mu.Unlock()
	return nil
}

// Disconnect ends the session. It never fails; teardown problems are
// logged.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.teardown(ctx)
	return nil
}

// Status reports the current session without side effects.
func (m *Manager) Status() Status {
	snap := m.machine.Snapshot()

	m.mu.Lock()
	var last *presence.Description
	if m.last != nil {
		d := *m.last
		last = &d
	}
	m.mu.Unlock()

	return Status{
		Connected:    snap.State == StateConnected,
		State:        snap.State,
		ClientID:     snap.ClientID,
		Presence:     last,
		Since:        snap.Since,
		SessionStart: m.start,
		Attempts:     snap.Attempts,
	}
}

func (m *Manager) teardown(ctx context.Context) {
	m.machine.Disconnect(ctx)
	m.mu.Lock()
	m.last = nil
	m.mu.Unlock()
}

// replay re-applies the last accepted presence after a reconnect.
func (m *Manager) replay(ctx context.Context) {
	m.mu.Lock()
	last := m.last
	m.mu.Unlock()
	if last == nil {
		return
	}

	if err := m.UpdatePresence(ctx, *last); err != nil {
		m.log.Warn("restoring presence after reconnect", "error", err)
		return
	}
	m.log.Info("presence restored after reconnect")
}

func (m *Manager) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	m.notify.Notify(ev)
}
