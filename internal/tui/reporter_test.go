package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"gamedeck/internal/backend"
	"gamedeck/internal/deps"
	"gamedeck/internal/install"
)

func collect() (*Reporter, *[]RowUpdateMsg) {
	var msgs []RowUpdateMsg
	r := NewReporter(func(msg tea.Msg) {
		if u, ok := msg.(RowUpdateMsg); ok {
			msgs = append(msgs, u)
		}
	})
	return r, &msgs
}

func TestReporterInstallStages(t *testing.T) {
	r, msgs := collect()
	r.Install("Vanilla", install.Progress{Stage: install.StageExtracting, Files: 3, Bytes: 50, TotalBytes: 100, CurrentFile: "game.exe"})
	r.Install("Vanilla", install.Progress{Stage: install.StageDone})

	if len(*msgs) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(*msgs))
	}
	first := (*msgs)[0]
	if first.Fields[ColStatus] != "extracting" || first.Fields[ColDetail] != "game.exe" {
		t.Errorf("unexpected extract fields: %v", first.Fields)
	}
	if first.Fields[ColProgress] != Bar(50, 100, barWidth) {
		t.Errorf("unexpected bar %q", first.Fields[ColProgress])
	}
	if (*msgs)[1].Fields[ColStatus] != "done" {
		t.Errorf("expected done, got %v", (*msgs)[1].Fields)
	}
}

func TestReporterDependencyAwaitingConfirmation(t *testing.T) {
	r, msgs := collect()
	r.Dependency(deps.State{Kind: backend.DependencyRuntime, Phase: deps.PhaseAwaitingConfirmation})

	got := (*msgs)[0]
	if got.Key != string(backend.DependencyRuntime) {
		t.Errorf("expected key %q, got %q", backend.DependencyRuntime, got.Key)
	}
	if got.Fields[ColStatus] != "awaiting_confirmation" {
		t.Errorf("unexpected status %q", got.Fields[ColStatus])
	}
	if got.Fields[ColDetail] == "" {
		t.Error("expected a confirmation hint")
	}
}

func TestReporterFailUsesCode(t *testing.T) {
	r, msgs := collect()
	r.Fail("Vanilla", backend.Fail("extract", backend.ErrExtract, errors.New("bad archive")))
	r.Fail("Other", errors.New("plain"))

	if (*msgs)[0].Fields[ColDetail] != string(backend.ErrExtract) {
		t.Errorf("expected code detail, got %q", (*msgs)[0].Fields[ColDetail])
	}
	if (*msgs)[1].Fields[ColDetail] != "plain" {
		t.Errorf("expected message detail, got %q", (*msgs)[1].Fields[ColDetail])
	}
}
