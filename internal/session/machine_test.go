package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tools.zach/dev/richcord/internal/discord"
)

func TestMachine_Connect(t *testing.T) {
	h := newHarness()
	m := NewMachine(h.opts)

	require.NoError(t, m.Connect(context.Background(), "123"))

	snap := m.Snapshot()
	require.Equal(t, StateConnected, snap.State)
	require.Equal(t, "123", snap.ClientID)
	require.Zero(t, snap.Attempts)
	require.False(t, snap.Since.IsZero())
	require.Equal(t, []EventKind{EventConnected}, h.events.kinds())
	require.Equal(t, 1, h.discord.latest().subscribers())
}

func TestMachine_ConnectRetriesThenSucceeds(t *testing.T) {
	h := newHarness()
	h.discord.failLogins(2, discord.ErrIPCNotAvailable)
	m := NewMachine(h.opts)

	require.NoError(t, m.Connect(context.Background(), "123"))

	require.Equal(t, 3, h.discord.loginCount())
	require.Equal(t, StateConnected, m.Snapshot().State)
	require.Zero(t, m.Snapshot().Attempts)
	require.True(t, h.discord.conn(0).isClosed(), "failed handle must be destroyed")
	require.Zero(t, h.discord.conn(0).subscribers(), "failed handle must be unsubscribed")
	require.Zero(t, h.events.count(EventError))
}

func TestMachine_ConnectFailsAfterMaxAttempts(t *testing.T) {
	h := newHarness()
	h.discord.failLogins(5, discord.ErrIPCNotAvailable)
	m := NewMachine(h.opts)

	err := m.Connect(context.Background(), "123")

	var e *Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, CodeConnectFailed, e.Code)
	require.Equal(t, "failed to connect after 3 attempts", e.Message)
	require.ErrorIs(t, err, discord.ErrIPCNotAvailable)
	require.Equal(t, 3, h.discord.loginCount())
	require.Equal(t, StateDisconnected, m.Snapshot().State)
	require.Equal(t, 1, h.events.count(EventError))
	require.Empty(t, h.clock.all(), "a failed initial connect must not schedule a reconnect")
}

func TestMachine_DisconnectAbortsConnectRetry(t *testing.T) {
	h := newHarness()
	h.opts.RetryDelay = time.Hour
	h.opts.RetryMaxDelay = time.Hour
	h.discord.failLogins(5, discord.ErrIPCNotAvailable)
	m := NewMachine(h.opts)

	done := make(chan error, 1)
	go func() { done <- m.Connect(context.Background(), "123") }()

	require.Eventually(t, func() bool { return h.discord.loginCount() == 1 }, time.Second, time.Millisecond)
	m.Disconnect(context.Background())

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrAborted)
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after Disconnect")
	}

	require.Equal(t, 1, h.discord.loginCount())
	require.Equal(t, StateDisconnected, m.Snapshot().State)
	require.Zero(t, h.events.count(EventError), "an aborted connect is silent")
}

func TestMachine_UnexpectedDrop_SchedulesOneReconnect(t *testing.T) {
	h := newHarness()
	m := NewMachine(h.opts)
	require.NoError(t, m.Connect(context.Background(), "123"))

	conn := h.discord.latest()
	conn.drop(io.EOF)
	conn.drop(io.EOF)

	require.Equal(t, StateDisconnected, m.Snapshot().State)
	require.Equal(t, "123", m.Snapshot().ClientID)
	require.Equal(t, 1, h.events.count(EventDisconnected))
	require.True(t, conn.isClosed())
	require.Zero(t, conn.subscribers())

	pending := h.clock.pending()
	require.Len(t, pending, 1)
	require.Equal(t, 10*time.Second, pending[0].d)
}

func TestMachine_ReconnectTimerReconnects(t *testing.T) {
	h := newHarness()
	m := NewMachine(h.opts)
	require.NoError(t, m.Connect(context.Background(), "123"))

	h.discord.latest().drop(io.EOF)
	h.clock.pending()[0].fire()

	require.Equal(t, StateConnected, m.Snapshot().State)
	require.Equal(t, 2, h.discord.loginCount())
	require.Equal(t, 2, h.events.count(EventConnected))
	require.Empty(t, h.clock.pending())
}

func TestMachine_FailedReconnectReschedules(t *testing.T) {
	h := newHarness()
	m := NewMachine(h.opts)
	require.NoError(t, m.Connect(context.Background(), "123"))

	h.discord.latest().drop(io.EOF)
	first := h.clock.pending()[0]
	h.discord.failLogins(3, discord.ErrIPCNotAvailable)
	first.fire()

	require.Equal(t, StateDisconnected, m.Snapshot().State)
	require.Equal(t, 1, h.events.count(EventError))

	pending := h.clock.pending()
	require.Len(t, pending, 1)
	require.NotSame(t, first, pending[0])
}

func TestMachine_DisconnectCancelsReconnect(t *testing.T) {
	h := newHarness()
	m := NewMachine(h.opts)
	require.NoError(t, m.Connect(context.Background(), "123"))

	h.discord.latest().drop(io.EOF)
	timer := h.clock.pending()[0]

	m.Disconnect(context.Background())
	require.Empty(t, h.clock.pending(), "the reconnect timer must be stopped")

	// A callback that raced the stop must still do nothing.
	timer.fire()
	require.Equal(t, 1, h.discord.loginCount())
	require.Equal(t, StateDisconnected, m.Snapshot().State)
	require.Empty(t, m.Snapshot().ClientID)
}

func TestMachine_Disconnect(t *testing.T) {
	h := newHarness()
	m := NewMachine(h.opts)
	require.NoError(t, m.Connect(context.Background(), "123"))
	conn := h.discord.latest()

	m.Disconnect(context.Background())

	require.Equal(t, 1, conn.clearCount())
	require.True(t, conn.isClosed())
	require.Zero(t, conn.subscribers())
	require.Equal(t, StateDisconnected, m.Snapshot().State)

	// A drop reported by the closed handle afterwards is ignored.
	conn.drop(io.EOF)
	require.Zero(t, h.events.count(EventDisconnected))
	require.Empty(t, h.clock.all())
}

func TestMachine_DisconnectWhenIdle(t *testing.T) {
	h := newHarness()
	m := NewMachine(h.opts)

	m.Disconnect(context.Background())
	require.Equal(t, StateDisconnected, m.Snapshot().State)
	require.Empty(t, h.events.kinds())
}

func TestState_Text(t *testing.T) {
	for _, s := range []State{StateDisconnected, StateConnecting, StateConnected} {
		b, err := s.MarshalText()
		require.NoError(t, err)

		var got State
		require.NoError(t, got.UnmarshalText(b))
		require.Equal(t, s, got)
	}
	var s State
	require.Error(t, s.UnmarshalText([]byte("bogus")))
}

func TestLinearBackOff(t *testing.T) {
	b := newLinearBackOff(time.Second, 3*time.Second)
	var got []time.Duration
	for range 5 {
		got = append(got, b.NextBackOff())
	}
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second, 3 * time.Second}, got)

	b.Reset()
	require.Equal(t, time.Second, b.NextBackOff())

	fixed := newLinearBackOff(5*time.Second, 0)
	require.Equal(t, 5*time.Second, fixed.NextBackOff())
	require.Equal(t, 5*time.Second, fixed.NextBackOff())
}
