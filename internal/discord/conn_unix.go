// conn_unix.go locates the Discord IPC socket on Unix-like systems. Discord
// and its Canary/PTB builds listen on discord-ipc-N under the runtime
// directory, /tmp, or a Snap/Flatpak sandbox directory.

//go:build !windows

package discord

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
)

// ///////////////////////////////////////////////
// Socket Discovery
// ///////////////////////////////////////////////

// socketPaths lists candidate socket paths in probe order.
func socketPaths() []string {
	var paths []string
	variants := []string{"discord-ipc", "discordcanary-ipc", "discordptb-ipc"}

	var dirs []string
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		dirs = append(dirs, dir)
	}
	for _, env := range []string{"TMPDIR", "TMP", "TEMP"} {
		if dir := os.Getenv(env); dir != "" {
			dirs = append(dirs, dir)
		}
	}
	dirs = append(dirs, "/tmp")

	for _, dir := range dirs {
		for _, v := range variants {
			for i := range maxIPCSlots {
				paths = append(paths, filepath.Join(dir, fmt.Sprintf("%s-%d", v, i)))
			}
		}
	}

	uid := strconv.Itoa(os.Getuid())
	sandboxes := []string{
		"snap.discord",
		"snap.discord-canary",
		"snap.discord-ptb",
		"app/com.discordapp.Discord",
		"app/com.discordapp.DiscordCanary",
		"app/com.discordapp.DiscordPTB",
	}
	for _, sb := range sandboxes {
		for i := range maxIPCSlots {
			paths = append(paths, fmt.Sprintf("/run/user/%s/%s/discord-ipc-%d", uid, sb, i))
		}
	}

	return append(paths, wslSocketPaths()...)
}

// dialIPC returns a connection to the first socket that accepts one.
func dialIPC(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	for _, path := range socketPaths() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn, err := d.DialContext(ctx, "unix", path)
		if err == nil {
			return conn, nil
		}
	}

	if isWSL() {
		return nil, fmt.Errorf("%w: running under WSL, a socat + npiperelay.exe relay is required", ErrIPCNotAvailable)
	}
	return nil, ErrIPCNotAvailable
}
