package watcher

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// stopSlice bounds how long Stop can be left waiting on a sleeping worker.
const stopSlice = 10 * time.Millisecond

type polledFile struct {
	callback Callback
	mtime    time.Time
	exists   bool
}

// Polling is the always-available watcher backend. A worker goroutine
// re-stats every watched file once per interval; a change is an existence
// flip or an mtime change.
type Polling struct {
	mu       sync.Mutex
	files    map[string]*polledFile
	interval time.Duration
	running  bool
	done     chan struct{}
	wg       sync.WaitGroup
	log      zerolog.Logger
}

// NewPolling creates a polling watcher with the given interval. A
// non-positive interval falls back to DefaultPollInterval.
func NewPolling(interval time.Duration, log zerolog.Logger) *Polling {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Polling{
		files:    make(map[string]*polledFile),
		interval: interval,
		log:      log,
	}
}

func (p *Polling) WatchFile(path string, cb Callback) error {
	if cb == nil {
		return fmt.Errorf("nil callback for '%s'", path)
	}

	entry := &polledFile{callback: cb}
	if info, err := os.Stat(path); err == nil {
		entry.mtime = info.ModTime()
		entry.exists = true
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[path] = entry
	return nil
}

func (p *Polling) UnwatchFile(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.files[path]; !ok {
		return fmt.Errorf("'%s' is not watched", path)
	}
	delete(p.files, path)
	return nil
}

// Start launches the worker. Calling Start on a running watcher is a no-op.
func (p *Polling) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.done = make(chan struct{})
	p.wg.Add(1)
	go p.run(p.done)
	return nil
}

// Stop halts the worker and waits for it to exit. The worker observes the
// stop within one sleep slice, so Stop returns promptly even with a long
// poll interval.
func (p *Polling) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *Polling) Close() error {
	return p.Stop()
}

func (p *Polling) run(done chan struct{}) {
	defer p.wg.Done()

	for {
		if !p.sleep(done) {
			return
		}
		p.pollOnce()
	}
}

// sleep waits one interval in stop-sized slices. Returns false once done is
// closed.
func (p *Polling) sleep(done chan struct{}) bool {
	remaining := p.interval
	for remaining > 0 {
		slice := stopSlice
		if remaining < slice {
			slice = remaining
		}
		select {
		case <-done:
			return false
		case <-time.After(slice):
			remaining -= slice
		}
	}
	return true
}

func (p *Polling) pollOnce() {
	type change struct {
		path string
		cb   Callback
	}

	p.mu.Lock()
	var changes []change
	for path, entry := range p.files {
		info, err := os.Stat(path)
		if err != nil {
			if entry.exists {
				entry.exists = false
				changes = append(changes, change{path, entry.callback})
			}
			continue
		}
		if !entry.exists || !info.ModTime().Equal(entry.mtime) {
			entry.exists = true
			entry.mtime = info.ModTime()
			changes = append(changes, change{path, entry.callback})
		}
	}
	p.mu.Unlock()

	for _, c := range changes {
		p.invoke(c.path, c.cb)
	}
}

// invoke shields the worker from a panicking callback; errors are logged
// and suppressed, never allowed to crash the host.
func (p *Polling) invoke(path string, cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("path", path).Msg("watch callback panicked")
		}
	}()
	cb(path)
}
