// Package hotreload implements the script reload protocol: change
// detection, protected-global backup and restore, staged apply with
// rollback on failure, and an append-only event history.
package hotreload

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mwantia/ember/errors"
	"github.com/mwantia/ember/pkg/engine"
	"github.com/mwantia/ember/pkg/script"
)

// Result classifies the outcome of one reload attempt.
type Result string

const (
	Success         Result = "Success"
	NoChanges       Result = "NoChanges"
	SyntaxError     Result = "SyntaxError"
	RuntimeError    Result = "RuntimeError"
	FileNotFound    Result = "FileNotFound"
	RollbackSuccess Result = "RollbackSuccess"
)

// Event summarizes one reload attempt. Terminal events are appended to the
// history log in order.
type Event struct {
	ID        string
	Script    string
	Result    Result
	Error     string
	Timestamp time.Time
}

// Callback observes reload events. The pre-reload callback fires after the
// protected backup and before the new content is applied, with the result
// still unset; the post-reload callback fires with the terminal event.
// Callbacks run on the caller's goroutine and must not reload the script
// currently in flight.
type Callback func(Event)

// DefaultHistoryCap bounds the in-memory event history; the oldest events
// are dropped beyond it.
const DefaultHistoryCap = 256

// Reloader drives the reload state machine against an engine and a script
// registry.
type Reloader struct {
	mu         sync.Mutex
	eng        engine.Engine
	reg        *script.Registry
	protected  []string
	pre        Callback
	post       Callback
	history    []Event
	historyCap int
	inflight   map[string]bool
	log        zerolog.Logger
}

// New creates a reloader over the given engine and registry.
func New(eng engine.Engine, reg *script.Registry, log zerolog.Logger) *Reloader {
	return &Reloader{
		eng:        eng,
		reg:        reg,
		historyCap: DefaultHistoryCap,
		inflight:   make(map[string]bool),
		log:        log,
	}
}

// SetEngine swaps the engine. Used when the runtime manager recreates the
// interpreter; registry, protected set, and history survive.
func (r *Reloader) SetEngine(eng engine.Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eng = eng
}

// Registry returns the backing script registry.
func (r *Reloader) Registry() *script.Registry {
	return r.reg
}

// AddProtected marks a top-level global whose contents survive reloads.
func (r *Reloader) AddProtected(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.protected {
		if n == name {
			return
		}
	}
	r.protected = append(r.protected, name)
}

// RemoveProtected drops a name from the protected set.
func (r *Reloader) RemoveProtected(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, n := range r.protected {
		if n == name {
			r.protected = append(r.protected[:i], r.protected[i+1:]...)
			return
		}
	}
}

// Protected returns the protected names in registration order.
func (r *Reloader) Protected() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.protected))
	copy(out, r.protected)
	return out
}

// SetPreReload installs the pre-reload callback.
func (r *Reloader) SetPreReload(cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pre = cb
}

// SetPostReload installs the post-reload callback.
func (r *Reloader) SetPostReload(cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.post = cb
}

// History returns a copy of the event log, oldest first.
func (r *Reloader) History() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.history))
	copy(out, r.history)
	return out
}

func newEvent(name string) Event {
	return Event{
		ID:        uuid.NewString(),
		Script:    name,
		Timestamp: time.Now(),
	}
}

// Reload runs the full state machine for a registered file-backed script.
func (r *Reloader) Reload(name string) Event {
	event := newEvent(name)

	if !r.begin(name) {
		event.Result = RuntimeError
		event.Error = errors.New(errors.InvalidState, fmt.Sprintf("recursive reload of '%s' rejected", name), name, 0).String()
		return event
	}
	defer r.end(name)

	info, ok := r.reg.Get(name)
	if !ok {
		event.Result = FileNotFound
		event.Error = fmt.Sprintf("script '%s' is not registered", name)
		return r.finish(event)
	}
	if info.Path == "" {
		event.Result = FileNotFound
		event.Error = fmt.Sprintf("script '%s' has no backing file", name)
		return r.finish(event)
	}

	stat, err := os.Stat(info.Path)
	if err != nil {
		event.Result = FileNotFound
		event.Error = err.Error()
		return r.finish(event)
	}
	if info.Applied && stat.ModTime().Equal(info.LastModified) {
		event.Result = NoChanges
		return r.finish(event)
	}

	content, err := os.ReadFile(info.Path)
	if err != nil {
		event.Result = FileNotFound
		event.Error = err.Error()
		return r.finish(event)
	}

	// The mtime moved but the bytes did not: record the new mtime so the
	// next check stays quiet, and skip the apply entirely.
	if info.Applied && script.Hash(string(content)) == info.ContentHash {
		r.reg.UpdateContent(name, string(content), stat.ModTime())
		event.Result = NoChanges
		return r.finish(event)
	}

	return r.apply(event, name, string(content), stat.ModTime())
}

// ReloadContent skips file I/O and runs the state machine from the
// protected backup onward. The stored content and hash update on success;
// the recorded modification time is left untouched.
func (r *Reloader) ReloadContent(name, content string) Event {
	event := newEvent(name)

	if !r.begin(name) {
		event.Result = RuntimeError
		event.Error = errors.New(errors.InvalidState, fmt.Sprintf("recursive reload of '%s' rejected", name), name, 0).String()
		return event
	}
	defer r.end(name)

	if _, ok := r.reg.Get(name); !ok {
		r.reg.RegisterContent(name, "")
	}
	return r.apply(event, name, content, time.Time{})
}

// CheckAndReloadAll walks the registry in registration order and reloads
// every script whose file changed. The returned events preserve that order.
func (r *Reloader) CheckAndReloadAll() []Event {
	var events []Event
	for _, name := range r.reg.Names() {
		if r.reg.NeedsReload(name) {
			events = append(events, r.Reload(name))
		}
	}
	return events
}

// NeedsReload reports whether the named script's file changed since the
// last successful load.
func (r *Reloader) NeedsReload(name string) bool {
	return r.reg.NeedsReload(name)
}

func (r *Reloader) begin(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inflight[name] {
		return false
	}
	r.inflight[name] = true
	return true
}

func (r *Reloader) end(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, name)
}

// apply runs BackupProtected → ApplyNewContent/Execute → Restore-on-failure
// → RefreshRegistry, then finishes the event.
func (r *Reloader) apply(event Event, name, content string, mtime time.Time) Event {
	backups := r.backupProtected()

	if cb := r.preCallback(); cb != nil {
		cb(event)
	}

	if err := r.evalNewContent(name, content); err != nil {
		restored := r.restoreProtected(backups, &event)
		switch engine.Classify(err) {
		case errors.SyntaxError:
			event.Result = SyntaxError
		default:
			if restored && len(backups) > 0 {
				event.Result = RollbackSuccess
			} else {
				event.Result = RuntimeError
			}
		}
		if event.Error == "" {
			event.Error = err.Error()
		} else {
			event.Error = err.Error() + "; " + event.Error
		}
		return r.finish(event)
	}

	if err := r.reg.UpdateContent(name, content, mtime); err != nil {
		r.log.Error().Err(err).Str("script", name).Msg("registry refresh failed")
	}
	event.Result = Success
	return r.finish(event)
}

func (r *Reloader) evalNewContent(name, content string) error {
	r.mu.Lock()
	eng := r.eng
	r.mu.Unlock()

	_, err := eng.Eval(name, content)
	return err
}

// backupProtected captures the engine value bound to each protected name
// into a holding map. Names with no current binding are skipped.
func (r *Reloader) backupProtected() map[string]any {
	r.mu.Lock()
	names := make([]string, len(r.protected))
	copy(names, r.protected)
	eng := r.eng
	r.mu.Unlock()

	backups := make(map[string]any)
	for _, name := range names {
		if v, ok := eng.Global(name); ok {
			backups[name] = v
		}
	}
	return backups
}

// restoreProtected rewrites each captured binding back into the global
// table. A restore failure is recorded on the event but does not mask the
// primary error; the return value reports whether every binding restored.
func (r *Reloader) restoreProtected(backups map[string]any, event *Event) bool {
	r.mu.Lock()
	eng := r.eng
	r.mu.Unlock()

	all := true
	for name, v := range backups {
		if err := eng.SetGlobal(name, v); err != nil {
			all = false
			r.log.Error().Err(err).Str("table", name).Msg("protected table restore failed")
			event.Error = fmt.Sprintf("restore of '%s' failed: %v", name, err)
		}
	}
	return all
}

func (r *Reloader) preCallback() Callback {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pre
}

// finish appends the terminal event to the bounded history. The post
// callback only observes events that reached the backup/apply stages, so
// short-circuit terminals (NoChanges, FileNotFound) are recorded silently.
func (r *Reloader) finish(event Event) Event {
	notify := false
	switch event.Result {
	case Success, SyntaxError, RuntimeError, RollbackSuccess:
		notify = true
	}

	if notify {
		if cb := func() Callback {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.post
		}(); cb != nil {
			cb(event)
		}
	}

	r.mu.Lock()
	r.history = append(r.history, event)
	if len(r.history) > r.historyCap {
		r.history = r.history[len(r.history)-r.historyCap:]
	}
	r.mu.Unlock()
	return event
}
