//go:build !windows

package control

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tools.zach/dev/richcord/internal/bridge"
)

// shortDir keeps socket paths under the sun_path limit.
func shortDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "rc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestListen_ServeOverSocket(t *testing.T) {
	addr := DefaultAddress(shortDir(t))
	ln, err := Listen(addr)
	require.NoError(t, err)

	info, err := os.Stat(addr)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	sessions := &fakeSessions{}
	srv := NewServer(bridge.New(sessions, bridge.NewHub(nil), discardLogger()), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	c := NewClient(addr)
	require.NoError(t, c.Initialize(context.Background(), "123"))
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123", st.ClientID)

	_, err = Listen(addr)
	require.ErrorIs(t, err, ErrAddressInUse)

	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestListen_RemovesStaleSocket(t *testing.T) {
	addr := DefaultAddress(shortDir(t))
	require.NoError(t, os.WriteFile(addr, nil, 0o600))

	ln, err := Listen(addr)
	require.NoError(t, err)
	require.NoError(t, ln.Close())
}

func TestClient_DaemonNotRunning(t *testing.T) {
	c := NewClient(DefaultAddress(shortDir(t)))

	_, err := c.Status(context.Background())

	require.ErrorIs(t, err, ErrDaemonNotRunning)
}
