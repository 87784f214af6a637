package deps

import "gamedeck/internal/backend"

// Phase is the position of one dependency in its install state machine.
type Phase string

const (
	PhaseUnchecked            Phase = "unchecked"
	PhaseMissing              Phase = "missing"
	PhaseInstalling           Phase = "installing"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
	PhaseResolved             Phase = "resolved"
)

// Busy reports whether an installer is running or awaiting confirmation.
func (p Phase) Busy() bool {
	return p == PhaseInstalling || p == PhaseAwaitingConfirmation
}

// State is the per-kind check state.
type State struct {
	Kind          backend.DependencyKind `json:"kind"`
	Phase         Phase                  `json:"phase"`
	DownloadTotal int64                  `json:"download_total"`
	DownloadDone  int64                  `json:"download_done"`
	LastError     string                 `json:"last_error,omitempty"`
	// Automatic is set when the install was started by CheckOnStartup.
	Automatic bool `json:"automatic"`
}

// Progress returns downloaded/total bytes with downloaded clamped to
// [0, total]. total is 0 when unknown.
func (s State) Progress() (done, total int64) {
	total = s.DownloadTotal
	done = s.DownloadDone
	if done < 0 {
		done = 0
	}
	if total > 0 && done > total {
		done = total
	}
	return done, total
}

// PromptReason says why the user is being asked about a dependency.
type PromptReason string

const (
	// PromptMissing offers to install a missing dependency.
	PromptMissing PromptReason = "missing"
	// PromptConfirm asks the user to confirm an installer finished.
	PromptConfirm PromptReason = "confirm"
)

// Prompt is a pending question for the UI, always tied to one kind.
type Prompt struct {
	Kind   backend.DependencyKind `json:"kind"`
	Reason PromptReason           `json:"reason"`
}
