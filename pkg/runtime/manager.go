// Package runtime implements the Ember runtime manager: it owns the
// embedded interpreter and the allocator, registers native bindings,
// executes scripts, and fronts the hot-reload protocol.
package runtime

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mwantia/ember/errors"
	"github.com/mwantia/ember/pkg/alloc"
	"github.com/mwantia/ember/pkg/engine"
	"github.com/mwantia/ember/pkg/hotreload"
	"github.com/mwantia/ember/pkg/script"
)

// BindingFunc registers native functionality on the interpreter. Returned
// errors and panics are normalized to BindingRegistrationFailed.
type BindingFunc func(eng engine.Engine) error

// Manager owns the interpreter and allocator. It is single-threaded by
// contract with respect to the interpreter: callers serialize all
// interpreter-touching operations, including watcher callbacks, before
// entering the manager.
type Manager struct {
	mu        sync.Mutex
	eng       engine.Engine
	allocator alloc.Allocator
	reg       *script.Registry
	reloader  *hotreload.Reloader
	log       zerolog.Logger
	valid     bool
}

// New creates a manager backed by the default allocator.
func New() *Manager {
	return NewWithAllocator(alloc.NewDefault())
}

// NewWithAllocator creates a manager with a caller-supplied allocator. The
// interpreter's allocation hook is routed into the allocator's Reallocate:
// a nil buffer allocates, a zero size deallocates.
func NewWithAllocator(a alloc.Allocator) *Manager {
	log := zerolog.Nop()
	eng := engine.NewGoja()
	eng.SetAllocHook(allocTrampoline(a))

	reg := script.NewRegistry()
	return &Manager{
		eng:       eng,
		allocator: a,
		reg:       reg,
		reloader:  hotreload.New(eng, reg, log),
		log:       log,
		valid:     true,
	}
}

func allocTrampoline(a alloc.Allocator) engine.AllocFunc {
	return func(buf []byte, newSize int) ([]byte, error) {
		return a.Reallocate(buf, newSize)
	}
}

// SetLogger routes the manager's own diagnostics to l. The reloader keeps
// the no-op logger it was created with.
func (m *Manager) SetLogger(l zerolog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = l
}

// IsStateValid reports whether the manager still owns a live interpreter.
// On a closed manager the Result- and Event-returning operations fail with
// InvalidState and CheckAndReloadScripts returns nil; NeedsReload,
// RegisteredScripts, ReloadHistory, and the protected-table and callback
// methods are not guarded and keep working on the retained state.
func (m *Manager) IsStateValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid
}

func (m *Manager) guard() *errors.ErrorInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.valid {
		return errors.New(errors.InvalidState, "runtime manager is closed", "", 0)
	}
	return nil
}

// RegisterBindings invokes fn with the interpreter handle. Errors and
// panics normalize to BindingRegistrationFailed.
func (m *Manager) RegisterBindings(fn BindingFunc) errors.Void {
	if err := m.guard(); err != nil {
		return errors.FailWith[struct{}](err)
	}
	if fn == nil {
		return errors.Fail[struct{}](errors.BindingRegistrationFailed, "nil binding function", "", 0)
	}

	var failure *errors.ErrorInfo
	func() {
		defer func() {
			if r := recover(); r != nil {
				failure = errors.New(errors.BindingRegistrationFailed, "binding registration panicked", fmt.Sprint(r), 0)
			}
		}()
		if err := fn(m.eng); err != nil {
			failure = errors.New(errors.BindingRegistrationFailed, "binding registration failed", err.Error(), 0)
		}
	}()

	if failure != nil {
		return errors.FailWith[struct{}](failure)
	}
	return errors.OkVoid()
}

// RegisterMultipleBindings registers each function in turn, stopping at the
// first failure.
func (m *Manager) RegisterMultipleBindings(fns ...BindingFunc) errors.Void {
	for _, fn := range fns {
		if result := m.RegisterBindings(fn); result.IsError() {
			return result
		}
	}
	return errors.OkVoid()
}

// ExecuteScript runs src and returns the result value. Interpreter failures
// come back classified with the engine's message as context.
func (m *Manager) ExecuteScript(src string) errors.Result[any] {
	if err := m.guard(); err != nil {
		return errors.FailWith[any](err)
	}

	value, err := m.eng.Eval("inline", src)
	if err != nil {
		return errors.Fail[any](engine.Classify(err), "script execution failed", err.Error(), 0)
	}
	return errors.Ok(value)
}

// ExecuteFile reads and runs the script at path.
func (m *Manager) ExecuteFile(path string) errors.Result[any] {
	if err := m.guard(); err != nil {
		return errors.FailWith[any](err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		kind := errors.FileReadError
		if os.IsNotExist(err) {
			kind = errors.FileNotFound
		}
		return errors.Fail[any](kind, "failed to read script file", path, 0)
	}

	value, err := m.eng.Eval(path, string(content))
	if err != nil {
		return errors.Fail[any](engine.Classify(err), "script execution failed", err.Error(), 0)
	}
	return errors.Ok(value)
}

// CallFunction invokes a global function by name. A missing global reports
// FunctionNotFound with the name as context.
func (m *Manager) CallFunction(name string, args ...any) errors.Result[any] {
	if err := m.guard(); err != nil {
		return errors.FailWith[any](err)
	}

	value, err := m.eng.Call(name, args...)
	if err != nil {
		kind := engine.Classify(err)
		if kind == errors.FunctionNotFound {
			return errors.Fail[any](kind, err.Error(), name, 0)
		}
		return errors.Fail[any](kind, "function call failed", err.Error(), 0)
	}
	return errors.Ok(value)
}

// RegisterHotReloadScript reads the file and registers it for hot reload.
// The content is applied on the next reload sweep, not at registration.
func (m *Manager) RegisterHotReloadScript(name, path string) errors.Void {
	if err := m.guard(); err != nil {
		return errors.FailWith[struct{}](err)
	}

	if err := m.reg.Register(name, path); err != nil {
		kind := errors.ScriptLoadError
		if stderrors.Is(err, fs.ErrNotExist) {
			kind = errors.FileNotFound
		}
		return errors.Fail[struct{}](kind, err.Error(), path, 0)
	}
	return errors.OkVoid()
}

func (m *Manager) invalidEvent(name string) hotreload.Event {
	return hotreload.Event{
		Script: name,
		Result: hotreload.RuntimeError,
		Error:  errors.New(errors.InvalidState, "runtime manager is closed", name, 0).String(),
	}
}

// ReloadScript reloads a registered script from its file.
func (m *Manager) ReloadScript(name string) hotreload.Event {
	if err := m.guard(); err != nil {
		return m.invalidEvent(name)
	}
	return m.reloader.Reload(name)
}

// ReloadScriptContent applies new content without touching the filesystem.
func (m *Manager) ReloadScriptContent(name, content string) hotreload.Event {
	if err := m.guard(); err != nil {
		return m.invalidEvent(name)
	}
	return m.reloader.ReloadContent(name, content)
}

// CheckAndReloadScripts reloads every registered script whose file changed,
// in registration order.
func (m *Manager) CheckAndReloadScripts() []hotreload.Event {
	if err := m.guard(); err != nil {
		return nil
	}
	return m.reloader.CheckAndReloadAll()
}

// NeedsReload reports whether the named script's file changed since the
// last load.
func (m *Manager) NeedsReload(name string) bool {
	return m.reloader.NeedsReload(name)
}

// RegisteredScripts returns the registered script records in registration
// order.
func (m *Manager) RegisteredScripts() []script.Info {
	return m.reg.List()
}

// ReloadHistory returns the reload event log, oldest first.
func (m *Manager) ReloadHistory() []hotreload.Event {
	return m.reloader.History()
}

// AddProtectedTable marks a top-level global whose contents survive
// reloads.
func (m *Manager) AddProtectedTable(name string) {
	m.reloader.AddProtected(name)
}

// RemoveProtectedTable drops a name from the protected set.
func (m *Manager) RemoveProtectedTable(name string) {
	m.reloader.RemoveProtected(name)
}

// ProtectedTables returns the protected names.
func (m *Manager) ProtectedTables() []string {
	return m.reloader.Protected()
}

// SetPreReloadCallback installs the pre-reload callback.
func (m *Manager) SetPreReloadCallback(cb hotreload.Callback) {
	m.reloader.SetPreReload(cb)
}

// SetPostReloadCallback installs the post-reload callback.
func (m *Manager) SetPostReloadCallback(cb hotreload.Callback) {
	m.reloader.SetPostReload(cb)
}

// ResetState destroys the interpreter and rebuilds it with the same
// allocator. The protected set, script registry, and reload history
// survive; registered script contents are not re-applied.
func (m *Manager) ResetState() errors.Void {
	if err := m.guard(); err != nil {
		return errors.FailWith[struct{}](err)
	}

	if err := m.eng.Close(); err != nil {
		m.log.Warn().Err(err).Msg("interpreter teardown reported an error")
	}

	eng := engine.NewGoja()
	eng.SetAllocHook(allocTrampoline(m.allocator))

	m.mu.Lock()
	m.eng = eng
	m.mu.Unlock()
	m.reloader.SetEngine(eng)
	return errors.OkVoid()
}

// Allocator returns the installed allocator for statistics observation.
func (m *Manager) Allocator() alloc.Allocator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocator
}

// ReplaceAllocator installs a new allocator and rewires the interpreter's
// allocation hook before returning. Only valid while no interpreter
// activity is in flight: memory still held by the engine was obtained from
// the previous allocator, so the safe sequence is ResetState followed by
// ReplaceAllocator, or a replace right after construction.
func (m *Manager) ReplaceAllocator(a alloc.Allocator) errors.Void {
	if err := m.guard(); err != nil {
		return errors.FailWith[struct{}](err)
	}
	if a == nil {
		return errors.Fail[struct{}](errors.InvalidState, "nil allocator", "", 0)
	}

	m.mu.Lock()
	m.allocator = a
	m.mu.Unlock()
	m.eng.SetAllocHook(allocTrampoline(a))
	return errors.OkVoid()
}

// Close tears down the interpreter and invalidates the manager.
func (m *Manager) Close() errors.Void {
	m.mu.Lock()
	if !m.valid {
		m.mu.Unlock()
		return errors.OkVoid()
	}
	m.valid = false
	eng := m.eng
	m.mu.Unlock()

	if err := eng.Close(); err != nil {
		return errors.Fail[struct{}](errors.InternalError, "interpreter teardown failed", err.Error(), 0)
	}
	return errors.OkVoid()
}
