package repl

import "github.com/charmbracelet/lipgloss"

// Styles
var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true)

	historyCommandStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	reloadOkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	reloadErrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)
