//go:build !windows

package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// socketName is the control socket's file name inside the data directory.
const socketName = "richcord.sock"

// DefaultAddress returns the control socket path for dataDir.
func DefaultAddress(dataDir string) string {
	return filepath.Join(dataDir, socketName)
}

// Listen opens the control socket at address. A socket file left behind by
// a dead daemon is removed; a live one is an error.
func Listen(address string) (net.Listener, error) {
	if _, err := os.Stat(address); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		conn, dialErr := Dial(ctx, address)
		cancel()
		if dialErr == nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %s", ErrAddressInUse, address)
		}
		if err := os.Remove(address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	if err := os.Chmod(address, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("restricting socket permissions: %w", err)
	}
	return ln, nil
}

// Dial connects to the control socket at address.
func Dial(ctx context.Context, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", address)
}
