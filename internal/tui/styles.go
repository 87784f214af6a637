package tui

import "github.com/charmbracelet/lipgloss"

var (
	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)

	// TitleStyle styles the table title.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))

	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	blue   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	statusStyles = map[string]lipgloss.Style{
		// Terminal states
		"done":       green,
		"installed":  green,
		"downloaded": green,
		"resolved":   green,
		"reachable":  green,
		"selected":   green,

		// Active states
		"resolving":           blue,
		"extracting":          blue,
		"persisting_metadata": blue,
		"inheriting":          blue,
		"installing_loader":   blue,
		"downloading":         blue,
		"installing":          blue,
		"probing":             blue,

		// Waiting on the user
		"awaiting_confirmation": yellow,

		// Warning
		"missing":     yellow,
		"unreachable": yellow,
		"cancelled":   yellow,

		// Error
		"failed": red,
		"error":  red,

		// Pending
		"pending":   lipgloss.NewStyle().Faint(true),
		"unchecked": lipgloss.NewStyle().Faint(true),
	}

	terminalStatuses = map[string]bool{
		"done": true, "installed": true, "downloaded": true, "resolved": true,
		"reachable": true, "selected": true, "missing": true, "unreachable": true,
		"cancelled": true, "failed": true, "error": true,
	}
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

// IsTerminal reports whether status ends a row's work.
func IsTerminal(status string) bool {
	return terminalStatuses[status]
}
