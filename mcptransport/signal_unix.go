//go:build !windows

package mcptransport

import (
	"os"
	"syscall"
)

// processTerminateSignal returns the graceful-shutdown signal sent to an MCP subprocess
// before the kill grace period elapses.
func processTerminateSignal() os.Signal {
	return syscall.SIGTERM
}
