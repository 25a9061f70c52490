package repl

import (
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/mwantia/ember/pkg/runtime"
)

// Model is the Bubble Tea model for the TUI REPL.
type Model struct {
	// Runtime and execution
	mgr *runtime.Manager

	// Input state
	textInput textinput.Model

	// History
	history      []HistoryEntry
	historyIndex int // -1 = current input, 0+ = history position
	savedInput   string
	commandIndex int // Next command index [N]

	// Output
	output []OutputLine

	// UI state
	width     int
	height    int
	status    Status
	statusMsg string

	// Quit flag
	quitting bool
}

// NewModel creates the TUI model over an existing runtime manager.
func NewModel(mgr *runtime.Manager) Model {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render(Prompt)
	ti.Focus()

	return Model{
		mgr:          mgr,
		textInput:    ti,
		historyIndex: -1,
		commandIndex: 1,
		status:       StatusReady,
	}
}
