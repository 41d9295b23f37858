package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"tools.zach/dev/richcord/internal/discord"
	"tools.zach/dev/richcord/internal/presence"
)

func TestManager_InitializeTwiceSameID(t *testing.T) {
	h := newHarness()
	mgr := NewManager(h.opts)

	require.NoError(t, mgr.Initialize(context.Background(), "123"))
	require.NoError(t, mgr.Initialize(context.Background(), "123"))

	require.Equal(t, 1, h.discord.loginCount())
	require.Equal(t, 1, h.events.count(EventConnected))
}

func TestManager_InitializeConcurrent(t *testing.T) {
	h := newHarness()
	mgr := NewManager(h.opts)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- mgr.Initialize(context.Background(), "123")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 1, h.discord.loginCount())
	require.True(t, mgr.Status().Connected)
}

func TestManager_InitializeDifferentID(t *testing.T) {
	h := newHarness()
	mgr := NewManager(h.opts)

	require.NoError(t, mgr.Initialize(context.Background(), "123"))
	first := h.discord.latest()
	require.NoError(t, mgr.UpdatePresence(context.Background(), presence.Description{Details: "a"}))

	require.NoError(t, mgr.Initialize(context.Background(), "456"))

	require.True(t, first.isClosed())
	require.Equal(t, 1, first.clearCount())
	require.Equal(t, 2, h.discord.loginCount())
	st := mgr.Status()
	require.Equal(t, "456", st.ClientID)
	require.Nil(t, st.Presence, "a new session starts without presence")
}

func TestManager_InitializeRequiresID(t *testing.T) {
	h := newHarness()
	mgr := NewManager(h.opts)

	require.Error(t, mgr.Initialize(context.Background(), ""))
	require.Zero(t, h.discord.loginCount())
}

func TestManager_UpdateBeforeInitialize(t *testing.T) {
	h := newHarness()
	mgr := NewManager(h.opts)

	err := mgr.UpdatePresence(context.Background(), presence.Description{Details: "x"})

	require.ErrorIs(t, err, ErrNotConnected)
	require.Zero(t, h.events.count(EventPresenceApplied))
	require.Nil(t, mgr.Status().Presence)
}

func TestManager_UpdateThenStatus(t *testing.T) {
	h := newHarness()
	mgr := NewManager(h.opts)
	require.NoError(t, mgr.Initialize(context.Background(), "123"))

	desc := presence.Description{Details: "Coding", ShowElapsedTime: true}
	require.NoError(t, mgr.UpdatePresence(context.Background(), desc))

	st := mgr.Status()
	require.True(t, st.Connected)
	require.Equal(t, StateConnected, st.State)
	require.Equal(t, "123", st.ClientID)
	require.Equal(t, &desc, st.Presence)

	ev, ok := h.events.lastOf(EventPresenceApplied)
	require.True(t, ok)
	require.Equal(t, "Coding", ev.Activity.Details)
	require.Equal(t, presence.DefaultState, ev.Activity.State)
	require.Equal(t, st.SessionStart.Unix(), ev.Activity.Timestamps.Start)
}

func TestManager_StartTimestampStableAcrossUpdates(t *testing.T) {
	h := newHarness()
	mgr := NewManager(h.opts)
	require.NoError(t, mgr.Initialize(context.Background(), "123"))

	for i := range 3 {
		require.NoError(t, mgr.UpdatePresence(context.Background(), presence.Description{
			Details:         fmt.Sprintf("step %d", i),
			ShowElapsedTime: true,
		}))
	}

	sent := h.discord.latest().sent()
	require.Len(t, sent, 3)
	for _, act := range sent {
		require.Equal(t, sent[0].Timestamps.Start, act.Timestamps.Start)
	}
}

func TestManager_InvalidPresence(t *testing.T) {
	h := newHarness()
	mgr := NewManager(h.opts)
	require.NoError(t, mgr.Initialize(context.Background(), "123"))

	err := mgr.UpdatePresence(context.Background(), presence.Description{Details: strings.Repeat("x", 300)})

	var e *Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, CodeInvalidPresence, e.Code)
	require.Equal(t, 1, h.events.count(EventError))
	require.Empty(t, h.discord.latest().sent())
}

func TestManager_SendRPCError(t *testing.T) {
	h := newHarness()
	mgr := NewManager(h.opts)
	require.NoError(t, mgr.Initialize(context.Background(), "123"))
	h.discord.latest().setErr = &discord.Error{Code: 4002, Message: "bad payload"}

	err := mgr.UpdatePresence(context.Background(), presence.Description{Details: "x"})

	var e *Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, "rpc_4002", e.Code)
	require.Equal(t, 1, h.events.count(EventError))
	require.True(t, mgr.Status().Connected, "an RPC error does not drop the connection")
	require.Empty(t, h.clock.all())
}

func TestManager_SendDisconnectStartsReconnect(t *testing.T) {
	h := newHarness()
	mgr := NewManager(h.opts)
	require.NoError(t, mgr.Initialize(context.Background(), "123"))
	h.discord.latest().setErr = fmt.Errorf("writing command: %w", syscall.EPIPE)

	err := mgr.UpdatePresence(context.Background(), presence.Description{Details: "x"})

	var e *Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, CodeDisconnected, e.Code)
	require.Zero(t, h.events.count(EventError))
	require.Equal(t, 1, h.events.count(EventDisconnected))
	require.Equal(t, StateDisconnected, mgr.Status().State)
	require.Len(t, h.clock.pending(), 1)
}

func TestManager_ReplaysPresenceAfterReconnect(t *testing.T) {
	h := newHarness()
	mgr := NewManager(h.opts)
	require.NoError(t, mgr.Initialize(context.Background(), "123"))

	desc := presence.Description{Details: "Designing", State: "Figma"}
	require.NoError(t, mgr.UpdatePresence(context.Background(), desc))

	h.discord.latest().drop(io.EOF)
	require.False(t, mgr.Status().Connected)
	require.Equal(t, &desc, mgr.Status().Presence, "presence survives a drop")

	h.clock.pending()[0].fire()

	second := h.discord.latest()
	require.NotSame(t, h.discord.conn(0), second)
	sent := second.sent()
	require.Len(t, sent, 1)
	require.Equal(t, "Designing", sent[0].Details)
	require.Equal(t, "Figma", sent[0].State)
	require.Equal(t, 2, h.events.count(EventPresenceApplied))
}

func TestManager_ClearPresence(t *testing.T) {
	h := newHarness()
	mgr := NewManager(h.opts)

	require.ErrorIs(t, mgr.ClearPresence(context.Background()), ErrNotConnected)

	require.NoError(t, mgr.Initialize(context.Background(), "123"))
	require.NoError(t, mgr.UpdatePresence(context.Background(), presence.Description{Details: "x"}))
	require.NoError(t, mgr.ClearPresence(context.Background()))

	require.Equal(t, 1, h.discord.latest().clearCount())
	require.Nil(t, mgr.Status().Presence)
	require.True(t, mgr.Status().Connected)
}

func TestManager_Disconnect(t *testing.T) {
	h := newHarness()
	mgr := NewManager(h.opts)
	require.NoError(t, mgr.Initialize(context.Background(), "123"))
	require.NoError(t, mgr.UpdatePresence(context.Background(), presence.Description{Details: "x"}))
	conn := h.discord.latest()

	require.NoError(t, mgr.Disconnect(context.Background()))

	require.True(t, conn.isClosed())
	require.Equal(t, 1, conn.clearCount())
	st := mgr.Status()
	require.False(t, st.Connected)
	require.Empty(t, st.ClientID)
	require.Nil(t, st.Presence)

	require.ErrorIs(t, mgr.UpdatePresence(context.Background(), presence.Description{}), ErrNotConnected)
}

func TestManager_DisconnectDuringUpdateForgetsPresence(t *testing.T) {
	h := newHarness()
	mgr := NewManager(h.opts)
	require.NoError(t, mgr.Initialize(context.Background(), "123"))
	started, release := h.discord.latest().holdSets()

	done := make(chan error, 1)
	go func() {
		done <- mgr.UpdatePresence(context.Background(), presence.Description{Details: "x"})
	}()
	<-started
	require.NoError(t, mgr.Disconnect(context.Background()))
	release()

	require.ErrorIs(t, <-done, ErrNotConnected)
	st := mgr.Status()
	require.False(t, st.Connected)
	require.Nil(t, st.Presence, "a presence sent across a disconnect must not come back")
	require.Zero(t, h.events.count(EventPresenceApplied))
}

func TestIsDisconnect(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"discord not connected", discord.ErrNotConnected, true},
		{"connection closed", fmt.Errorf("%w: %w", discord.ErrConnectionClosed, io.EOF), true},
		{"eof", io.EOF, true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"net closed", &net.OpError{Op: "write", Err: net.ErrClosed}, true},
		{"epipe", fmt.Errorf("write: %w", syscall.EPIPE), true},
		{"econnreset", syscall.ECONNRESET, true},
		{"text fallback", errors.New("Connection refused by peer"), true},
		{"text disconnected", errors.New("client disconnected"), true},
		{"rpc error", &discord.Error{Code: 4000, Message: "Invalid Client ID"}, false},
		{"deadline", context.DeadlineExceeded, false},
		{"unrelated", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsDisconnect(tt.err))
		})
	}
}

func TestAsError(t *testing.T) {
	require.Nil(t, AsError(nil))

	e := &Error{Code: CodeSendFailed, Message: "x"}
	require.Same(t, e, AsError(fmt.Errorf("wrapped: %w", e)))

	verr := presence.Validate(presence.Description{Details: strings.Repeat("x", 200)})
	require.Equal(t, CodeInvalidPresence, AsError(verr).Code)

	plain := AsError(errors.New("boom"))
	require.Empty(t, plain.Code)
	require.Equal(t, "boom", plain.Message)
}
