// Package watcher provides file-change monitoring for the Ember runtime:
// a kernel-event backend built on the platform notification facility and a
// stat-based polling fallback. Callbacks are delivered on the watcher's own
// worker goroutine; callers marshal back to their own thread before touching
// shared state.
package watcher

import (
	"time"

	"github.com/rs/zerolog"
)

// Callback is invoked with the watched path after a change is observed.
// It runs on the watcher's worker goroutine.
type Callback func(path string)

// Watcher is the watch/unwatch/start/stop contract shared by all backends.
// Start and Stop are idempotent; Close stops the worker and releases any OS
// handles.
type Watcher interface {
	WatchFile(path string, cb Callback) error
	UnwatchFile(path string) error
	Start() error
	Stop() error
	Close() error
}

// DefaultPollInterval is the polling backend's wake-up period.
const DefaultPollInterval = 500 * time.Millisecond

// New returns the native kernel-event backend for the current OS, falling
// back to the polling backend with a warning when the kernel facility is
// unavailable.
func New(log zerolog.Logger) Watcher {
	w, err := NewNative(log)
	if err != nil {
		log.Warn().Err(err).Msg("native file watcher unavailable, falling back to polling")
		return NewPolling(DefaultPollInterval, log)
	}
	return w
}
