// conn_windows.go locates the Discord IPC named pipe (\\.\pipe\discord-ipc-N)
// using go-winio.

//go:build windows

package discord

import (
	"context"
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// dialIPC returns a connection to the first pipe slot that accepts one.
func dialIPC(ctx context.Context) (net.Conn, error) {
	for i := range maxIPCSlots {
		conn, err := winio.DialPipeContext(ctx, fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, i))
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, ErrIPCNotAvailable
}
