package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// PickerOption is one line in a PickerModel.
type PickerOption struct {
	Label  string
	Detail string
	Status string
}

// PickerModel lets the user choose one option with the arrow keys.
type PickerModel struct {
	title     string
	options   []PickerOption
	cursor    int
	chosen    int
	cancelled bool
}

// NewPickerModel creates a picker with the cursor on initial.
func NewPickerModel(title string, options []PickerOption, initial int) PickerModel {
	if initial < 0 || initial >= len(options) {
		initial = 0
	}
	return PickerModel{title: title, options: options, cursor: initial, chosen: -1}
}

// Init satisfies the tea.Model interface.
func (m PickerModel) Init() tea.Cmd {
	return nil
}

// Update satisfies the tea.Model interface.
func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.options)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.options) > 0 {
			m.chosen = m.cursor
		}
		return m, tea.Quit
	case "esc", "q", "ctrl+c":
		m.cancelled = true
		return m, tea.Quit
	}
	return m, nil
}

// View satisfies the tea.Model interface.
func (m PickerModel) View() string {
	faint := lipgloss.NewStyle().Faint(true)
	focused := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))

	if m.cancelled {
		return faint.Render("  cancelled") + "\n"
	}

	var sb strings.Builder
	if m.title != "" {
		sb.WriteString(TitleStyle.Render(m.title))
		sb.WriteString("\n\n")
	}

	labelWidth := 0
	for _, o := range m.options {
		if len(o.Label) > labelWidth {
			labelWidth = len(o.Label)
		}
	}

	for i, o := range m.options {
		prefix := "  "
		label := pad(o.Label, labelWidth)
		if i == m.cursor {
			prefix = "▸ "
			label = focused.Render(label)
		}
		status := StatusStyle(o.Status).Render(pad(o.Status, 11))
		sb.WriteString(fmt.Sprintf("%s%s  %s  %s\n", prefix, label, status, faint.Render(o.Detail)))
	}

	sb.WriteString("\n")
	sb.WriteString(faint.Render("  [↑↓] Navigate  [Enter] Select  [Esc] Cancel"))
	sb.WriteString("\n")
	return sb.String()
}

// Chosen returns the selected index, or false when the user cancelled.
func (m PickerModel) Chosen() (int, bool) {
	if m.cancelled || m.chosen < 0 {
		return 0, false
	}
	return m.chosen, true
}

// RunPicker shows the picker on the terminal and returns the chosen index.
func RunPicker(model PickerModel, opts ...tea.ProgramOption) (int, bool, error) {
	final, err := tea.NewProgram(model, opts...).Run()
	if err != nil {
		return 0, false, err
	}
	m, ok := final.(PickerModel)
	if !ok {
		return 0, false, nil
	}
	idx, chosen := m.Chosen()
	return idx, chosen, nil
}
