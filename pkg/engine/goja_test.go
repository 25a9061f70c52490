package engine_test

import (
	"strings"
	"testing"

	"github.com/mwantia/ember/errors"
	"github.com/mwantia/ember/pkg/alloc"
	"github.com/mwantia/ember/pkg/engine"
)

func TestEvalReturnsValue(t *testing.T) {
	g := engine.NewGoja()
	defer g.Close()

	v, err := g.Eval("test", "1 + 2")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got, ok := v.(int64); !ok || got != 3 {
		t.Errorf("Eval = %v (%T), want 3", v, v)
	}
}

func TestEvalSyntaxError(t *testing.T) {
	g := engine.NewGoja()
	defer g.Close()

	_, err := g.Eval("bad", "x = {mode: \"B\" <<<")
	if err == nil {
		t.Fatal("expected syntax error")
	}
	if engine.Classify(err) != errors.SyntaxError {
		t.Errorf("Classify = %s, want SyntaxError", engine.Classify(err))
	}
}

func TestEvalRuntimeError(t *testing.T) {
	g := engine.NewGoja()
	defer g.Close()

	_, err := g.Eval("boom", "undefinedFunction()")
	if err == nil {
		t.Fatal("expected runtime error")
	}
	if engine.Classify(err) != errors.RuntimeError {
		t.Errorf("Classify = %s, want RuntimeError", engine.Classify(err))
	}
}

func TestGlobalRoundTrip(t *testing.T) {
	g := engine.NewGoja()
	defer g.Close()

	if _, err := g.Eval("setup", "cfg = {mode: \"A\"}"); err != nil {
		t.Fatalf("eval: %v", err)
	}

	v, ok := g.Global("cfg")
	if !ok {
		t.Fatal("Global returned no value for cfg")
	}

	// Clobber and restore by reference; identity and contents survive.
	if _, err := g.Eval("clobber", "cfg = {mode: \"B\"}"); err != nil {
		t.Fatalf("clobber: %v", err)
	}
	if err := g.SetGlobal("cfg", v); err != nil {
		t.Fatalf("restore: %v", err)
	}

	mode, err := g.Eval("check", "cfg.mode")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if mode != "A" {
		t.Errorf("cfg.mode = %v after restore, want A", mode)
	}
}

func TestGlobalMissing(t *testing.T) {
	g := engine.NewGoja()
	defer g.Close()

	if _, ok := g.Global("nothing"); ok {
		t.Error("Global reported a value for an unset name")
	}
}

func TestDeleteGlobal(t *testing.T) {
	g := engine.NewGoja()
	defer g.Close()

	g.SetGlobal("temp", 42)
	if err := g.DeleteGlobal("temp"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := g.Global("temp"); ok {
		t.Error("global still present after delete")
	}
}

func TestCallGoBinding(t *testing.T) {
	g := engine.NewGoja()
	defer g.Close()

	if err := g.SetGlobal("add", func(a, b int) int { return a + b }); err != nil {
		t.Fatalf("bind: %v", err)
	}

	v, err := g.Call("add", 2, 3)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got, ok := v.(int64); !ok || got != 5 {
		t.Errorf("Call = %v (%T), want 5", v, v)
	}
}

func TestCallMissingFunction(t *testing.T) {
	g := engine.NewGoja()
	defer g.Close()

	_, err := g.Call("nope")
	if err == nil {
		t.Fatal("expected error calling a missing function")
	}
	if engine.Classify(err) != errors.FunctionNotFound {
		t.Errorf("Classify = %s, want FunctionNotFound", engine.Classify(err))
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("error %q does not name the function", err.Error())
	}
}

func TestCallNonCallableGlobal(t *testing.T) {
	g := engine.NewGoja()
	defer g.Close()

	g.SetGlobal("notfn", 7)
	_, err := g.Call("notfn")
	if engine.Classify(err) != errors.FunctionNotFound {
		t.Errorf("Classify = %s, want FunctionNotFound", engine.Classify(err))
	}
}

func TestAllocHookSeesSourceTraffic(t *testing.T) {
	a := alloc.NewDefault()
	g := engine.NewGoja()
	g.SetAllocHook(a.Reallocate)

	src := "x = 1"
	if _, err := g.Eval("main", src); err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got := a.Stats().TotalAllocated; got != uint64(len(src)) {
		t.Errorf("TotalAllocated = %d, want %d", got, len(src))
	}

	// Re-evaluating the same chunk resizes instead of leaking.
	src2 := "x = 1; y = 2"
	if _, err := g.Eval("main", src2); err != nil {
		t.Fatalf("second eval: %v", err)
	}
	if got := a.Stats().TotalAllocated; got != uint64(len(src2)) {
		t.Errorf("TotalAllocated = %d after re-eval, want %d", got, len(src2))
	}

	if err := g.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := a.Stats().TotalAllocated; got != 0 {
		t.Errorf("TotalAllocated = %d after close, want 0", got)
	}
}
