package watcher

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Native is the kernel-event watcher backend. fsnotify selects the platform
// facility underneath: kqueue on the BSD/macOS family, inotify on Linux,
// ReadDirectoryChangesW on Windows. One worker goroutine drains the event
// and error streams and routes events back to the registered callbacks.
// Rapid consecutive changes may be coalesced by the kernel; callers get at
// least one callback after each change set.
type Native struct {
	mu        sync.Mutex
	fs        *fsnotify.Watcher
	callbacks map[string]Callback
	running   bool
	done      chan struct{}
	wg        sync.WaitGroup
	log       zerolog.Logger
}

// NewNative opens the kernel notification facility. The error is returned
// to the factory so it can fall back to polling.
func NewNative(log zerolog.Logger) (*Native, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to open kernel watch facility: %w", err)
	}
	return &Native{
		fs:        fs,
		callbacks: make(map[string]Callback),
		log:       log,
	}, nil
}

func (n *Native) WatchFile(path string, cb Callback) error {
	if cb == nil {
		return fmt.Errorf("nil callback for '%s'", path)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.fs.Add(path); err != nil {
		return fmt.Errorf("failed to watch '%s': %w", path, err)
	}
	n.callbacks[path] = cb
	return nil
}

func (n *Native) UnwatchFile(path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.callbacks[path]; !ok {
		return fmt.Errorf("'%s' is not watched", path)
	}
	delete(n.callbacks, path)
	// Remove can fail once the file is already gone; the callback table is
	// authoritative, so that is not an error.
	if err := n.fs.Remove(path); err != nil {
		n.log.Debug().Err(err).Str("path", path).Msg("kernel watch already released")
	}
	return nil
}

func (n *Native) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return nil
	}
	n.running = true
	n.done = make(chan struct{})
	n.wg.Add(1)
	go n.run(n.done)
	return nil
}

func (n *Native) Stop() error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	close(n.done)
	n.mu.Unlock()

	n.wg.Wait()
	return nil
}

// Close stops the worker and releases the kernel handle.
func (n *Native) Close() error {
	if err := n.Stop(); err != nil {
		return err
	}
	return n.fs.Close()
}

func (n *Native) run(done chan struct{}) {
	defer n.wg.Done()

	for {
		select {
		case <-done:
			return

		case event, ok := <-n.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			n.mu.Lock()
			cb := n.callbacks[event.Name]
			n.mu.Unlock()
			if cb != nil {
				n.invoke(event.Name, cb)
			}

		case err, ok := <-n.fs.Errors:
			if !ok {
				return
			}
			n.log.Error().Err(err).Msg("kernel watch error")
		}
	}
}

func (n *Native) invoke(path string, cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error().Interface("panic", r).Str("path", path).Msg("watch callback panicked")
		}
	}()
	cb(path)
}
