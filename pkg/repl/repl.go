// Package repl implements the interactive evaluation loop for the Ember
// runtime: a plain line-oriented REPL for pipes and a Bubble Tea TUI.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mwantia/ember/pkg/runtime"
)

const (
	Prompt         = "ember> "
	ContinuePrompt = "    >> "
)

// REPL is the plain line-oriented evaluation loop.
type REPL struct {
	mgr     *runtime.Manager
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	history []string
	running bool
}

// New creates a REPL over an existing runtime manager.
func New(mgr *runtime.Manager, stdin io.Reader, stdout, stderr io.Writer) *REPL {
	return &REPL{
		mgr:     mgr,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		history: make([]string, 0),
		running: true,
	}
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.printWelcome()

	scanner := bufio.NewScanner(r.stdin)
	var multilineBuffer strings.Builder
	inMultiline := false
	braceCount := 0

	for r.running {
		if inMultiline {
			fmt.Fprint(r.stdout, ContinuePrompt)
		} else {
			fmt.Fprint(r.stdout, Prompt)
		}

		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if strings.TrimSpace(line) == "" {
			if inMultiline {
				input := multilineBuffer.String()
				multilineBuffer.Reset()
				inMultiline = false
				braceCount = 0
				r.execute(input)
			}
			continue
		}

		if !inMultiline {
			if r.handleCommand(line) {
				continue
			}
		}

		// Track braces for multiline input
		for _, ch := range line {
			switch ch {
			case '{':
				braceCount++
			case '}':
				braceCount--
			}
		}

		if inMultiline {
			multilineBuffer.WriteString("\n")
		}
		multilineBuffer.WriteString(line)

		if braceCount > 0 {
			inMultiline = true
			continue
		}

		input := multilineBuffer.String()
		multilineBuffer.Reset()
		inMultiline = false
		braceCount = 0

		r.execute(input)
	}

	return scanner.Err()
}

// handleCommand handles special REPL commands. Returns true if handled.
func (r *REPL) handleCommand(line string) bool {
	line = strings.TrimSpace(line)

	switch {
	case line == "quit" || line == "exit":
		r.running = false
		fmt.Fprintln(r.stdout, "Goodbye!")
		return true

	case line == "help":
		r.printHelp()
		return true

	case line == "history":
		r.printHistory()
		return true

	case line == "clear":
		fmt.Fprint(r.stdout, "\033[2J\033[H")
		return true

	case line == "scripts":
		r.printScripts()
		return true

	case line == "reloads":
		r.printReloads()
		return true

	case line == "stats":
		r.printStats()
		return true

	case strings.HasPrefix(line, "protect "):
		name := strings.TrimSpace(strings.TrimPrefix(line, "protect "))
		r.mgr.AddProtectedTable(name)
		fmt.Fprintf(r.stdout, "protected: %s\n", strings.Join(r.mgr.ProtectedTables(), ", "))
		return true
	}

	return false
}

// execute runs a chunk of input on the manager.
func (r *REPL) execute(input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	r.history = append(r.history, input)

	result := r.mgr.ExecuteScript(input)
	if result.IsError() {
		fmt.Fprintln(r.stderr, result.Err().String())
		return
	}

	value, _ := result.Value()
	if value != nil {
		fmt.Fprintln(r.stdout, formatValue(value))
	}
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.stdout, "Ember - embedded scripting runtime")
	fmt.Fprintln(r.stdout, "Type 'help' for available commands, 'quit' to exit.")
	fmt.Fprintln(r.stdout)
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.stdout, "Commands:")
	fmt.Fprintln(r.stdout, "  help           - Show this help message")
	fmt.Fprintln(r.stdout, "  quit           - Exit the REPL (also: exit)")
	fmt.Fprintln(r.stdout, "  history        - Show command history")
	fmt.Fprintln(r.stdout, "  clear          - Clear the screen")
	fmt.Fprintln(r.stdout, "  scripts        - List registered hot-reload scripts")
	fmt.Fprintln(r.stdout, "  reloads        - Show the reload event history")
	fmt.Fprintln(r.stdout, "  stats          - Show allocator statistics")
	fmt.Fprintln(r.stdout, "  protect <name> - Mark a global as reload-protected")
	fmt.Fprintln(r.stdout)
	fmt.Fprintln(r.stdout, "Multiline input:")
	fmt.Fprintln(r.stdout, "  Input with more '{' than '}' continues on the next line.")
	fmt.Fprintln(r.stdout, "  It runs once the braces balance, or on an empty line.")
}

func (r *REPL) printHistory() {
	if len(r.history) == 0 {
		fmt.Fprintln(r.stdout, "No history.")
		return
	}
	for i, cmd := range r.history {
		fmt.Fprintf(r.stdout, "%4d: %s\n", i+1, cmd)
	}
}

func (r *REPL) printScripts() {
	scripts := r.mgr.RegisteredScripts()
	if len(scripts) == 0 {
		fmt.Fprintln(r.stdout, "No scripts registered.")
		return
	}
	for _, s := range scripts {
		path := s.Path
		if path == "" {
			path = "(content only)"
		}
		fmt.Fprintf(r.stdout, "  %-16s %s\n", s.Name, path)
	}
}

func (r *REPL) printReloads() {
	events := r.mgr.ReloadHistory()
	if len(events) == 0 {
		fmt.Fprintln(r.stdout, "No reloads yet.")
		return
	}
	for _, e := range events {
		line := fmt.Sprintf("  %s %-16s %s", e.Timestamp.Format("15:04:05"), e.Script, e.Result)
		if e.Error != "" {
			line += " " + e.Error
		}
		fmt.Fprintln(r.stdout, line)
	}
}

func (r *REPL) printStats() {
	a := r.mgr.Allocator()
	stats := a.Stats()
	fmt.Fprintf(r.stdout, "allocator: %s\n", a.Name())
	fmt.Fprintf(r.stdout, "  outstanding: %d bytes (peak %d)\n", stats.TotalAllocated, stats.PeakAllocated)
	fmt.Fprintf(r.stdout, "  allocations: %d, deallocations: %d, failures: %d\n",
		stats.AllocationCount, stats.DeallocationCount, stats.FailedAllocations)
}

// Manager returns the underlying runtime manager for external access.
func (r *REPL) Manager() *runtime.Manager {
	return r.mgr
}
