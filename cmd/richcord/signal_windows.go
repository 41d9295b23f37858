//go:build windows

package main

import "os"

// shutdownSignals stop the daemon. Windows only delivers os.Interrupt
// (Ctrl+C and Ctrl+Break) to console processes.
var shutdownSignals = []os.Signal{os.Interrupt}
