// conn_wsl.go provides WSL-specific Discord IPC socket discovery.
//
// When running inside WSL (Windows Subsystem for Linux), Discord runs on the
// Windows host side. Its IPC socket is a Windows named pipe (\\.\pipe\discord-ipc-N),
// which is not directly accessible from WSL2 as a Unix socket.
//
// WSL1 may expose Windows named pipes transparently, but WSL2 does not.
// For WSL2, users need to set up a relay using socat + npiperelay.exe:
//
//	socat UNIX-LISTEN:/tmp/discord-ipc-0,fork EXEC:"npiperelay.exe -ep -s //./pipe/discord-ipc-0"
//
// The relay socket lands in /tmp or the runtime directory, which socketPaths
// already probes. This file adds the WSLg runtime directory on top.

//go:build linux

package discord

import (
	"fmt"
	"os"
	"strings"
)

// isWSL reports whether the current process is running inside WSL.
func isWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	lower := strings.ToLower(string(data))
	return strings.Contains(lower, "microsoft")
}

// wslSocketPaths returns the paths a socat/npiperelay bridge usually
// creates. Most overlap with socketPaths; a dial on a missing path fails fast.
func wslSocketPaths() []string {
	if !isWSL() {
		return nil
	}
	paths := make([]string, 0, maxIPCSlots)
	for i := range maxIPCSlots {
		paths = append(paths, fmt.Sprintf("/mnt/wslg/runtime-dir/discord-ipc-%d", i))
	}
	return paths
}
