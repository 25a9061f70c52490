// Package engine abstracts the embedded scripting interpreter behind the
// capability set the runtime needs: an eval entry point, named global
// tables, callable globals, and a realloc-style allocation hook. The only
// implementation is backed by goja.
package engine

import (
	"fmt"

	"github.com/mwantia/ember/errors"
)

// AllocFunc is the realloc-style allocation hook the engine routes its
// retained memory through. A nil buf allocates, a newSize of 0 deallocates
// and returns nil, otherwise the buffer is resized preserving
// min(len(buf), newSize) bytes.
type AllocFunc func(buf []byte, newSize int) ([]byte, error)

// Engine is the interpreter capability set.
type Engine interface {
	// Eval compiles and runs src. The name labels the chunk in engine
	// diagnostics. Returned errors are *Error values classified as
	// SyntaxError or RuntimeError.
	Eval(name, src string) (any, error)

	// Global returns the engine-level value bound to a top-level global.
	// The value is an opaque reference: passing it back to SetGlobal
	// restores the original binding with its identity intact.
	Global(name string) (any, bool)

	// SetGlobal binds a value (engine value or plain Go value) to a
	// top-level global.
	SetGlobal(name string, value any) error

	// DeleteGlobal removes a top-level global.
	DeleteGlobal(name string) error

	// Call invokes a global function by name. A missing or non-callable
	// global yields a FunctionNotFound error.
	Call(fn string, args ...any) (any, error)

	// SetAllocHook installs the allocation hook. Passing nil reverts the
	// engine to its internal allocation.
	SetAllocHook(hook AllocFunc)

	// Close releases the interpreter and any hook-allocated memory.
	Close() error
}

// Error is the classified failure surface of an engine. Kind is one of the
// script error kinds; Message carries the engine's own diagnostic.
type Error struct {
	Kind    errors.Kind
	Message string
	Line    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Classify extracts the error kind, defaulting unknown errors to
// InternalError.
func Classify(err error) errors.Kind {
	if ee, ok := err.(*Error); ok {
		return ee.Kind
	}
	return errors.InternalError
}
