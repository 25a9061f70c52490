package repl

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mwantia/ember/pkg/hotreload"
	"github.com/mwantia/ember/pkg/runtime"
)

// tickMsg re-renders the status bar every statusTick without keyboard
// activity.
type tickMsg time.Time

const statusTick = 500 * time.Millisecond

// RunTUI starts the Bubble Tea REPL over the manager and blocks until the
// user quits.
func RunTUI(mgr *runtime.Manager) error {
	_, err := tea.NewProgram(NewModel(mgr), tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func tick() tea.Cmd {
	return tea.Tick(statusTick, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textInput.Width = msg.Width - len(Prompt) - 2
		return m, nil

	case tickMsg:
		return m, tick()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			m.quitting = true
			return m, tea.Quit

		case tea.KeyEnter:
			return m.submit()

		case tea.KeyUp:
			return m.historyBack(), nil

		case tea.KeyDown:
			return m.historyForward(), nil
		}
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textInput.Value())
	if input == "" {
		return m, nil
	}

	m.textInput.SetValue("")
	m.historyIndex = -1
	m.history = append(m.history, HistoryEntry{
		Index: m.commandIndex,
		Input: input,
		Exec:  time.Now(),
	})
	m.appendOutput(fmt.Sprintf("[%d] %s", m.commandIndex, input), OutputCommand)
	m.commandIndex++

	switch input {
	case "quit", "exit":
		m.quitting = true
		return m, tea.Quit
	case "clear":
		m.output = nil
		return m, nil
	}

	m.status = StatusExecuting
	result := m.mgr.ExecuteScript(input)
	if result.IsError() {
		m.status = StatusError
		m.statusMsg = string(result.Err().Kind)
		m.appendOutput(result.Err().String(), OutputError)
		return m, nil
	}

	m.status = StatusReady
	m.statusMsg = ""
	if value, _ := result.Value(); value != nil {
		m.appendOutput(formatValue(value), OutputNormal)
	}
	return m, nil
}

func (m *Model) appendOutput(text string, kind OutputType) {
	for _, line := range strings.Split(text, "\n") {
		m.output = append(m.output, OutputLine{Text: line, Type: kind})
	}
}

func (m Model) historyBack() Model {
	if len(m.history) == 0 {
		return m
	}
	if m.historyIndex == -1 {
		m.savedInput = m.textInput.Value()
		m.historyIndex = len(m.history) - 1
	} else if m.historyIndex > 0 {
		m.historyIndex--
	}
	m.textInput.SetValue(m.history[m.historyIndex].Input)
	m.textInput.CursorEnd()
	return m
}

func (m Model) historyForward() Model {
	if m.historyIndex == -1 {
		return m
	}
	if m.historyIndex < len(m.history)-1 {
		m.historyIndex++
		m.textInput.SetValue(m.history[m.historyIndex].Input)
	} else {
		m.historyIndex = -1
		m.textInput.SetValue(m.savedInput)
	}
	m.textInput.CursorEnd()
	return m
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	visible := m.height - 3
	if visible < 1 {
		visible = 1
	}
	lines := m.output
	if len(lines) > visible {
		lines = lines[len(lines)-visible:]
	}
	for _, line := range lines {
		switch line.Type {
		case OutputError:
			b.WriteString(errorStyle.Render(line.Text))
		case OutputInfo:
			b.WriteString(infoStyle.Render(line.Text))
		case OutputCommand:
			b.WriteString(historyCommandStyle.Render(line.Text))
		default:
			b.WriteString(resultStyle.Render(line.Text))
		}
		b.WriteString("\n")
	}
	for i := len(lines); i < visible; i++ {
		b.WriteString("\n")
	}

	b.WriteString(m.textInput.View())
	b.WriteString("\n")
	b.WriteString(m.statusBar())
	return b.String()
}

func (m Model) statusBar() string {
	stats := m.mgr.Allocator().Stats()
	left := fmt.Sprintf("%s | %d B outstanding | %d allocs",
		m.mgr.Allocator().Name(), stats.TotalAllocated, stats.AllocationCount)

	right := "no reloads"
	if history := m.mgr.ReloadHistory(); len(history) > 0 {
		last := history[len(history)-1]
		tag := fmt.Sprintf("%s: %s", last.Script, last.Result)
		if last.Result == hotreload.Success || last.Result == hotreload.NoChanges {
			right = reloadOkStyle.Render(tag)
		} else {
			right = reloadErrStyle.Render(tag)
		}
	}
	if m.statusMsg != "" {
		right = reloadErrStyle.Render(m.statusMsg)
	}

	bar := left + "  " + right
	if m.width > 0 {
		bar = lipgloss.NewStyle().Width(m.width - 2).Render(bar)
	}
	return statusBarStyle.Render(bar)
}
