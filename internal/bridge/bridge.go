// Package bridge connects the presentation layer to the session. Commands
// come in through [Bridge] methods and always produce a [Reply]; session
// events go out through the [Hub].
//
// The process root builds exactly one Bridge and hands it to every front
// end, so each command has a single handler for the life of the process.
package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"tools.zach/dev/richcord/internal/presence"
	"tools.zach/dev/richcord/internal/session"
)

// Sessions is the session API the bridge drives. *session.Manager
// implements it.
type Sessions interface {
	Initialize(ctx context.Context, clientID string) error
	UpdatePresence(ctx context.Context, desc presence.Description) error
	ClearPresence(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Status() session.Status
}

// Reply is the outcome of a command.
type Reply struct {
	Success bool           `json:"success"`
	Error   *session.Error `json:"error,omitempty"`
}

// Err returns the reply's error, or nil when it succeeded.
func (r Reply) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == nil {
		return &session.Error{Message: "command failed"}
	}
	return r.Error
}

// Bridge routes commands to the session.
type Bridge struct {
	sessions Sessions
	hub      *Hub
	log      *slog.Logger
}

// New creates the bridge. Events published by the session should go to hub.
func New(sessions Sessions, hub *Hub, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{sessions: sessions, hub: hub, log: log.With("component", "bridge")}
}

// Initialize connects the session as clientID.
func (b *Bridge) Initialize(ctx context.Context, clientID string) Reply {
	return b.call("initialize", func() error { return b.sessions.Initialize(ctx, clientID) })
}

// ApplyPresence sends a new presence.
func (b *Bridge) ApplyPresence(ctx context.Context, desc presence.Description) Reply {
	return b.call("updatePresence", func() error { return b.sessions.UpdatePresence(ctx, desc) })
}

// ClearPresence removes the current presence.
func (b *Bridge) ClearPresence(ctx context.Context) Reply {
	return b.call("clearPresence", func() error { return b.sessions.ClearPresence(ctx) })
}

// Disconnect ends the session.
func (b *Bridge) Disconnect(ctx context.Context) Reply {
	return b.call("disconnect", func() error { return b.sessions.Disconnect(ctx) })
}

// Status returns the session status.
func (b *Bridge) Status() session.Status {
	return b.sessions.Status()
}

// Events subscribes to session notifications. See [Hub.Subscribe].
func (b *Bridge) Events(buffer int) (<-chan session.Event, func()) {
	return b.hub.Subscribe(buffer)
}

// call runs fn and converts its error, or a panic, into a Reply.
func (b *Bridge) call(name string, fn func() error) (reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("command panicked", "command", name, "panic", r)
			reply = Reply{Error: &session.Error{Message: fmt.Sprintf("internal error in %s", name), Details: fmt.Sprint(r)}}
		}
	}()

	if err := fn(); err != nil {
		b.log.Debug("command failed", "command", name, "error", err)
		return Reply{Error: session.AsError(err)}
	}
	return Reply{Success: true}
}
