package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func pickerOptions() []PickerOption {
	return []PickerOption{
		{Label: "cdn-a.example.com", Detail: "42ms", Status: "reachable"},
		{Label: "cdn-b.example.com", Detail: "-", Status: "unreachable"},
		{Label: "cdn-c.example.com", Detail: "90ms", Status: "reachable"},
	}
}

func press(m PickerModel, key tea.KeyMsg) PickerModel {
	updated, _ := m.Update(key)
	return updated.(PickerModel)
}

func TestPickerNavigateAndSelect(t *testing.T) {
	m := NewPickerModel("Mirrors", pickerOptions(), 0)
	m = press(m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(m, tea.KeyMsg{Type: tea.KeyUp})

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(PickerModel)
	if cmd == nil {
		t.Error("expected tea.Quit after enter")
	}
	idx, ok := m.Chosen()
	if !ok || idx != 1 {
		t.Errorf("expected index 1 chosen, got %d (%v)", idx, ok)
	}
}

func TestPickerCancel(t *testing.T) {
	m := NewPickerModel("Mirrors", pickerOptions(), 2)
	m = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := m.Chosen(); ok {
		t.Error("expected no choice after esc")
	}
	if !strings.Contains(m.View(), "cancelled") {
		t.Error("expected cancelled view")
	}
}

func TestPickerInitialOutOfRange(t *testing.T) {
	m := NewPickerModel("", pickerOptions(), 7)
	if m.cursor != 0 {
		t.Errorf("expected cursor reset to 0, got %d", m.cursor)
	}
	view := m.View()
	if !strings.Contains(view, "cdn-a.example.com") || !strings.Contains(view, "42ms") {
		t.Errorf("expected options in view, got %q", view)
	}
}
