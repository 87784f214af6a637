package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"gamedeck/internal/backend"
	"gamedeck/internal/deps"
	"gamedeck/internal/install"
)

// Column headers shared by the reporters.
const (
	ColName     = "NAME"
	ColStatus   = "STATUS"
	ColProgress = "PROGRESS"
	ColDetail   = "DETAIL"
)

const barWidth = 20

// Reporter adapts install, download and dependency callbacks to row
// updates. send is usually tea.Program.Send or a plain-mode printer.
type Reporter struct {
	send func(tea.Msg)
}

// NewReporter constructs a reporter around send.
func NewReporter(send func(tea.Msg)) *Reporter {
	return &Reporter{send: send}
}

// Install reports install progress for the row key.
func (r *Reporter) Install(key string, p install.Progress) {
	fields := map[string]string{ColStatus: string(p.Stage)}
	switch {
	case p.Stage == install.StageExtracting && p.Files > 0:
		fields[ColProgress] = Bar(p.Bytes, p.TotalBytes, barWidth)
		fields[ColDetail] = p.CurrentFile
	case p.Stage == install.StageDone:
		fields[ColProgress] = ""
		fields[ColDetail] = ""
	}
	r.send(RowUpdateMsg{Key: key, Fields: fields})
}

// Download reports bytes received for the row key.
func (r *Reporter) Download(key string, done, total int64) {
	r.send(RowUpdateMsg{Key: key, Fields: map[string]string{
		ColStatus:   "downloading",
		ColProgress: Bar(done, total, barWidth),
	}})
}

// Dependency reports a dependency state change. Rows are keyed by kind.
func (r *Reporter) Dependency(st deps.State) {
	fields := map[string]string{ColStatus: string(st.Phase), ColDetail: st.LastError}
	done, total := st.Progress()
	if st.Phase == deps.PhaseInstalling && (done > 0 || total > 0) {
		fields[ColProgress] = Bar(done, total, barWidth)
	} else {
		fields[ColProgress] = ""
	}
	if st.Phase == deps.PhaseAwaitingConfirmation {
		fields[ColDetail] = fmt.Sprintf("finish the installer, then run: gamedeck deps confirm %s", st.Kind)
	}
	r.send(RowUpdateMsg{Key: string(st.Kind), Fields: fields})
}

// Finish marks the row key with a terminal status.
func (r *Reporter) Finish(key, status, detail string) {
	r.send(StatusUpdate(key, status, detail))
}

// Fail marks the row key failed with the error's code.
func (r *Reporter) Fail(key string, err error) {
	detail := err.Error()
	if code := backend.CodeOf(err); code != backend.ErrUnknown {
		detail = string(code)
	}
	r.Finish(key, "failed", detail)
}
