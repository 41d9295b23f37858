package session

import (
	"time"

	"tools.zach/dev/richcord/internal/discord"
)

// EventKind names an outbound notification.
type EventKind string

const (
	EventConnected       EventKind = "connected"
	EventDisconnected    EventKind = "disconnected"
	EventError           EventKind = "error"
	EventPresenceApplied EventKind = "presenceApplied"
)

// Event is a notification about the session. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind     EventKind         `json:"kind"`
	Time     time.Time         `json:"time"`
	ClientID string            `json:"clientId,omitempty"`
	Error    *Error            `json:"error,omitempty"`
	Activity *discord.Activity `json:"activity,omitempty"`
}

// Notifier receives session notifications. Notify must not block.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}
