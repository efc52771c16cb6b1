// Package lifecycle tracks whether the process is shutting down so handlers
// can report it and stop accepting new work.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown marks the process as shutting down (or clears the flag,
// which tests use to reset state).
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether shutdown has started.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
