package session

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"tools.zach/dev/richcord/internal/discord"
	"tools.zach/dev/richcord/internal/presence"
)

// Options configures a [Machine] and a [Manager]. Zero fields take the
// values from [DefaultOptions].
type Options struct {
	// MaxAttempts bounds login attempts per connect.
	MaxAttempts int
	// RetryDelay is the step of the linear backoff between login attempts
	// and RetryMaxDelay its ceiling.
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
	// ReconnectDelay is the wait before reconnecting after a drop.
	ReconnectDelay time.Duration
	// CommandTimeout bounds each login and each SET_ACTIVITY round trip.
	// A negative value disables the bound.
	CommandTimeout time.Duration

	// UpdateLimit and UpdateBurst throttle outgoing presence updates.
	UpdateLimit rate.Limit
	UpdateBurst int

	// Builder renders descriptions into payloads.
	Builder presence.Builder

	NewConn   func() Conn
	Notifier  Notifier
	Logger    *slog.Logger
	AfterFunc func(d time.Duration, f func()) Timer
}

// DefaultOptions matches Discord's expectations: three login attempts five
// seconds apart, a ten second reconnect delay, and at most five presence
// updates every twenty seconds.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:    3,
		RetryDelay:     5 * time.Second,
		RetryMaxDelay:  5 * time.Second,
		ReconnectDelay: 10 * time.Second,
		CommandTimeout: 10 * time.Second,
		UpdateLimit:    rate.Every(20 * time.Second / 5),
		UpdateBurst:    5,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = def.RetryDelay
	}
	if o.RetryMaxDelay < o.RetryDelay {
		o.RetryMaxDelay = o.RetryDelay
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = def.ReconnectDelay
	}
	if o.CommandTimeout == 0 {
		o.CommandTimeout = def.CommandTimeout
	}
	if o.UpdateLimit == 0 {
		o.UpdateLimit = def.UpdateLimit
	}
	if o.UpdateBurst <= 0 {
		o.UpdateBurst = def.UpdateBurst
	}
	if o.NewConn == nil {
		o.NewConn = func() Conn { return discord.NewClient() }
	}
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.AfterFunc == nil {
		o.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return o
}
