//go:build windows

package control

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/Microsoft/go-winio"
)

// DefaultAddress returns the per-user control pipe. dataDir is unused on
// Windows; pipes live in their own namespace.
func DefaultAddress(dataDir string) string {
	user := os.Getenv("USERNAME")
	if user == "" {
		user = "default"
	}
	return `\\.\pipe\richcord-` + strings.ToLower(user)
}

// Listen opens the control pipe at address.
func Listen(address string) (net.Listener, error) {
	ln, err := winio.ListenPipe(address, &winio.PipeConfig{
		// Owner and SYSTEM only.
		SecurityDescriptor: "D:P(A;;GA;;;OW)(A;;GA;;;SY)",
	})
	if err != nil {
		if strings.Contains(err.Error(), "Access is denied") {
			return nil, fmt.Errorf("%w: %s", ErrAddressInUse, address)
		}
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	return ln, nil
}

// Dial connects to the control pipe at address.
func Dial(ctx context.Context, address string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, address)
}
