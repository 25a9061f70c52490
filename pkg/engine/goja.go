package engine

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/mwantia/ember/errors"
)

// Goja hosts a goja JavaScript runtime. The global table is the JS global
// object; Go values and functions set as globals are wrapped by goja's
// reflection bridge. Retained script sources live in buffers obtained from
// the installed allocation hook so the host allocator sees the engine's
// memory traffic.
//
// Goja is not safe for concurrent use; the runtime manager serializes
// access by contract.
type Goja struct {
	rt      *goja.Runtime
	hook    AllocFunc
	sources map[string][]byte
}

// NewGoja creates a fresh interpreter with no allocation hook installed.
func NewGoja() *Goja {
	return &Goja{
		rt:      goja.New(),
		sources: make(map[string][]byte),
	}
}

// SetAllocHook installs the allocation hook for subsequently retained
// sources. Buffers already held are resized and released through whichever
// hook is installed at that time, not the one that produced them.
func (g *Goja) SetAllocHook(hook AllocFunc) {
	g.hook = hook
}

// retain stores the chunk's source in hook-allocated memory, reusing and
// resizing the previous buffer for the same chunk name.
func (g *Goja) retain(name, src string) error {
	if g.hook == nil {
		return nil
	}
	buf, err := g.hook(g.sources[name], len(src))
	if err != nil {
		return err
	}
	copy(buf, src)
	g.sources[name] = buf
	return nil
}

func (g *Goja) Eval(name, src string) (any, error) {
	if err := g.retain(name, src); err != nil {
		return nil, &Error{Kind: errors.MemoryLimitExceeded, Message: err.Error()}
	}

	prog, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, &Error{Kind: errors.SyntaxError, Message: err.Error()}
	}

	value, err := g.rt.RunProgram(prog)
	if err != nil {
		return nil, classifyRuntime(err)
	}
	if value == nil {
		return nil, nil
	}
	return value.Export(), nil
}

// classifyRuntime wraps anything the runtime reports after a successful
// compile: thrown exceptions, stack overflows, interrupts.
func classifyRuntime(err error) *Error {
	return &Error{Kind: errors.RuntimeError, Message: err.Error()}
}

// Global returns the goja value bound to name. The reference keeps its
// identity when passed back to SetGlobal, which is what the hot-reload
// backup path relies on.
func (g *Goja) Global(name string) (any, bool) {
	v := g.rt.GlobalObject().Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil, false
	}
	return v, true
}

func (g *Goja) SetGlobal(name string, value any) error {
	if err := g.rt.Set(name, value); err != nil {
		return fmt.Errorf("failed to set global '%s': %w", name, err)
	}
	return nil
}

func (g *Goja) DeleteGlobal(name string) error {
	if err := g.rt.GlobalObject().Delete(name); err != nil {
		return fmt.Errorf("failed to delete global '%s': %w", name, err)
	}
	return nil
}

func (g *Goja) Call(fn string, args ...any) (any, error) {
	v := g.rt.GlobalObject().Get(fn)
	if v == nil || goja.IsUndefined(v) {
		return nil, &Error{Kind: errors.FunctionNotFound, Message: fmt.Sprintf("global function '%s' is not defined", fn)}
	}
	callable, ok := goja.AssertFunction(v)
	if !ok {
		return nil, &Error{Kind: errors.FunctionNotFound, Message: fmt.Sprintf("global '%s' is not callable", fn)}
	}

	gargs := make([]goja.Value, len(args))
	for i, a := range args {
		gargs[i] = g.rt.ToValue(a)
	}

	result, err := callable(goja.Undefined(), gargs...)
	if err != nil {
		return nil, classifyRuntime(err)
	}
	if result == nil {
		return nil, nil
	}
	return result.Export(), nil
}

// Close releases every hook-retained source buffer. The goja runtime itself
// is garbage collected once unreferenced.
func (g *Goja) Close() error {
	if g.hook != nil {
		for name, buf := range g.sources {
			if _, err := g.hook(buf, 0); err != nil {
				return fmt.Errorf("failed to release source buffer '%s': %w", name, err)
			}
			delete(g.sources, name)
		}
	}
	g.sources = make(map[string][]byte)
	g.rt = nil
	return nil
}
