//go:build windows

package mcptransport

import "os"

// processTerminateSignal on Windows has no SIGTERM equivalent; os.Kill is sent
// immediately and the kill-grace wait becomes a formality.
func processTerminateSignal() os.Signal {
	return os.Kill
}
