package repl_test

import (
	"strings"
	"testing"

	"github.com/mwantia/ember/pkg/repl"
	"github.com/mwantia/ember/pkg/runtime"
)

func run(t *testing.T, input string) (string, string) {
	t.Helper()

	mgr := runtime.New()
	t.Cleanup(func() { mgr.Close() })

	var stdout, stderr strings.Builder
	r := repl.New(mgr, strings.NewReader(input), &stdout, &stderr)
	if err := r.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	return stdout.String(), stderr.String()
}

func TestExpressionResult(t *testing.T) {
	stdout, stderr := run(t, "6 * 7\n")
	if !strings.Contains(stdout, "42") {
		t.Errorf("stdout %q does not contain the result", stdout)
	}
	if stderr != "" {
		t.Errorf("stderr = %q, want empty", stderr)
	}
}

func TestSyntaxErrorGoesToStderr(t *testing.T) {
	_, stderr := run(t, "x = {\n\n")
	if !strings.Contains(stderr, "SyntaxError") {
		t.Errorf("stderr %q does not report the syntax error", stderr)
	}
}

func TestMultilineInput(t *testing.T) {
	stdout, stderr := run(t, "function f() {\nreturn 7\n}\nf()\n")
	if stderr != "" {
		t.Errorf("stderr = %q, want empty", stderr)
	}
	if !strings.Contains(stdout, "7") {
		t.Errorf("stdout %q does not contain the call result", stdout)
	}
}

func TestQuitCommand(t *testing.T) {
	stdout, _ := run(t, "quit\n1 + 1\n")
	if !strings.Contains(stdout, "Goodbye!") {
		t.Errorf("stdout %q does not contain the farewell", stdout)
	}
	if strings.Contains(stdout, "2") {
		t.Error("input after quit was executed")
	}
}

func TestHelpCommand(t *testing.T) {
	stdout, _ := run(t, "help\nquit\n")
	if !strings.Contains(stdout, "Commands:") {
		t.Errorf("stdout %q does not contain the help text", stdout)
	}
}

func TestStatsCommand(t *testing.T) {
	stdout, _ := run(t, "x = 1\nstats\nquit\n")
	if !strings.Contains(stdout, "allocator:") {
		t.Errorf("stdout %q does not contain allocator stats", stdout)
	}
}

func TestProtectCommand(t *testing.T) {
	stdout, _ := run(t, "protect cfg\nquit\n")
	if !strings.Contains(stdout, "cfg") {
		t.Errorf("stdout %q does not list the protected table", stdout)
	}
}
