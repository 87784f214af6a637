// Package deps tracks optional runtime dependencies through independent
// per-kind state machines driven by backend notifications and explicit
// user confirmation.
package deps

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"gamedeck/internal/backend"
	"gamedeck/internal/events"
)

// ErrInstallPending is returned when an installer for the kind is already
// running or awaiting confirmation.
var ErrInstallPending = errors.New("dependency install already pending")

// Options configures an Ensurer.
type Options struct {
	// AutoInstall reports whether CheckOnStartup may start the installer
	// for a missing kind instead of only prompting. Only one automatic
	// install runs at a time. Nil means never.
	AutoInstall func(backend.DependencyKind) bool
	Logger      log.FieldLogger
	OnChange    func(State)
	OnPrompt    func(Prompt)
}

// Ensurer owns the state of every dependency kind.
type Ensurer struct {
	prober backend.DependencyProber
	bus    *events.Bus
	opts   Options
	logger log.FieldLogger

	mu      sync.Mutex
	states  map[backend.DependencyKind]*State
	checked map[backend.DependencyKind]bool
	groups  map[backend.DependencyKind]*events.Group
	prompts map[backend.DependencyKind]PromptReason
}

// New creates an Ensurer. Construct one per process; its startup latches
// live as long as it does.
func New(prober backend.DependencyProber, bus *events.Bus, opts Options) *Ensurer {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Ensurer{
		prober:  prober,
		bus:     bus,
		opts:    opts,
		logger:  logger,
		states:  make(map[backend.DependencyKind]*State),
		checked: make(map[backend.DependencyKind]bool),
		groups:  make(map[backend.DependencyKind]*events.Group),
		prompts: make(map[backend.DependencyKind]PromptReason),
	}
}

// CheckOnStartup probes each kind at most once per Ensurer. Missing kinds
// get a prompt. A missing kind that AutoInstall opts in gets its installer
// started while no other automatic install is pending.
func (e *Ensurer) CheckOnStartup(ctx context.Context) []State {
	for _, kind := range backend.DependencyKinds() {
		e.mu.Lock()
		if e.checked[kind] {
			e.mu.Unlock()
			continue
		}
		e.checked[kind] = true
		e.mu.Unlock()

		if e.detect(ctx, kind) {
			e.resolve(kind)
			continue
		}

		e.mu.Lock()
		auto := e.opts.AutoInstall != nil && e.opts.AutoInstall(kind) && !e.automaticPendingLocked()
		e.mu.Unlock()

		if auto {
			if err := e.beginInstall(ctx, kind, true); err != nil {
				e.logger.WithField("dependency", kind).Warnf("automatic install failed to start: %v", err)
			}
			continue
		}
		e.markMissing(kind, "")
	}
	return e.States()
}

// BeginInstall starts the interactive installer for kind.
func (e *Ensurer) BeginInstall(ctx context.Context, kind backend.DependencyKind) error {
	return e.beginInstall(ctx, kind, false)
}

func (e *Ensurer) beginInstall(ctx context.Context, kind backend.DependencyKind, automatic bool) error {
	e.mu.Lock()
	st := e.stateLocked(kind)
	if st.Phase.Busy() {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", kind, ErrInstallPending)
	}

	if old := e.groups[kind]; old != nil {
		old.Close()
	}
	g := e.bus.NewGroup()
	source := string(kind)
	g.On(events.KindEnsureStart, source, func(events.Event) { e.onEnsureStart(kind) })
	g.On(events.KindDownloadStart, source, func(ev events.Event) { e.onDownloadStart(kind, ev) })
	g.On(events.KindDownloadProgress, source, func(ev events.Event) { e.onDownloadProgress(kind, ev) })
	g.On(events.KindDownloadDone, source, func(events.Event) { e.onDownloadDone(kind) })
	g.On(events.KindEnsureDone, source, func(ev events.Event) { e.onEnsureDone(kind, ev) })
	e.groups[kind] = g

	st.Phase = PhaseInstalling
	st.Automatic = automatic
	st.DownloadTotal = 0
	st.DownloadDone = 0
	st.LastError = ""
	delete(e.prompts, kind)
	snapshot := *st
	e.mu.Unlock()

	e.logger.WithFields(log.Fields{"dependency": kind, "automatic": automatic}).Info("starting dependency installer")
	e.changed(snapshot)

	if err := e.prober.BeginInteractiveDependencyInstall(ctx, kind); err != nil {
		e.teardown(kind, g)
		e.markMissing(kind, err.Error())
		return fmt.Errorf("start %s installer: %w", kind, err)
	}
	return nil
}

// ConfirmAndRecheck is the user's "I finished, check again". It only runs
// detection and never invokes an installer, so repeated calls are safe.
// While the installer is still running a failed check only reopens the
// missing prompt; the kind keeps listening for the installer's outcome.
func (e *Ensurer) ConfirmAndRecheck(ctx context.Context, kind backend.DependencyKind) State {
	if e.detect(ctx, kind) {
		e.resolve(kind)
		return e.State(kind)
	}

	e.mu.Lock()
	installing := e.stateLocked(kind).Phase == PhaseInstalling
	if installing {
		e.prompts[kind] = PromptMissing
	}
	e.mu.Unlock()

	if installing {
		e.logger.WithField("dependency", kind).Info("not detected yet, installer still running")
		e.prompt(Prompt{Kind: kind, Reason: PromptMissing})
	} else {
		e.teardown(kind, nil)
		e.markMissing(kind, "")
	}
	return e.State(kind)
}

// Recheck resets kind to Unchecked and probes it again. Startup latches
// are not affected.
func (e *Ensurer) Recheck(ctx context.Context, kind backend.DependencyKind) State {
	e.teardown(kind, nil)

	e.mu.Lock()
	st := e.stateLocked(kind)
	*st = State{Kind: kind, Phase: PhaseUnchecked}
	delete(e.prompts, kind)
	snapshot := *st
	e.mu.Unlock()
	e.changed(snapshot)

	if e.detect(ctx, kind) {
		e.resolve(kind)
	} else {
		e.markMissing(kind, "")
	}
	return e.State(kind)
}

// State returns a copy of kind's state. Unseen kinds are Unchecked.
func (e *Ensurer) State(kind backend.DependencyKind) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[kind]; ok {
		return *st
	}
	return State{Kind: kind, Phase: PhaseUnchecked}
}

// States returns every kind's state in the canonical kind order.
func (e *Ensurer) States() []State {
	kinds := backend.DependencyKinds()
	out := make([]State, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, e.State(kind))
	}
	return out
}

// Prompts returns the open prompts in the canonical kind order.
func (e *Ensurer) Prompts() []Prompt {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Prompt
	for _, kind := range backend.DependencyKinds() {
		if reason, ok := e.prompts[kind]; ok {
			out = append(out, Prompt{Kind: kind, Reason: reason})
		}
	}
	return out
}

// PendingConfirmation lists the kinds waiting for the user to confirm.
func (e *Ensurer) PendingConfirmation() []backend.DependencyKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []backend.DependencyKind
	for _, kind := range backend.DependencyKinds() {
		if st, ok := e.states[kind]; ok && st.Phase == PhaseAwaitingConfirmation {
			out = append(out, kind)
		}
	}
	return out
}

// DismissPrompt closes the prompt for kind without changing its phase.
func (e *Ensurer) DismissPrompt(kind backend.DependencyKind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.prompts, kind)
}

func (e *Ensurer) onEnsureStart(kind backend.DependencyKind) {
	e.update(kind, func(st *State) { st.Phase = PhaseInstalling })
}

func (e *Ensurer) onDownloadStart(kind backend.DependencyKind, ev events.Event) {
	p, _ := ev.Payload.(events.DownloadStart)
	e.update(kind, func(st *State) {
		st.DownloadTotal = p.Total
		st.DownloadDone = 0
	})
}

func (e *Ensurer) onDownloadProgress(kind backend.DependencyKind, ev events.Event) {
	p, _ := ev.Payload.(events.DownloadProgress)
	e.update(kind, func(st *State) {
		if p.Total > 0 {
			st.DownloadTotal = p.Total
		}
		if p.Downloaded > st.DownloadDone {
			st.DownloadDone = p.Downloaded
		}
	})
}

func (e *Ensurer) onDownloadDone(kind backend.DependencyKind) {
	e.mu.Lock()
	st := e.stateLocked(kind)
	st.Phase = PhaseAwaitingConfirmation
	e.prompts[kind] = PromptConfirm
	snapshot := *st
	e.mu.Unlock()

	e.changed(snapshot)
	e.prompt(Prompt{Kind: kind, Reason: PromptConfirm})
}

func (e *Ensurer) onEnsureDone(kind backend.DependencyKind, ev events.Event) {
	p, _ := ev.Payload.(events.EnsureDone)
	if p.Success {
		e.resolve(kind)
		return
	}
	e.teardown(kind, nil)
	e.markMissing(kind, p.Message)
}

func (e *Ensurer) resolve(kind backend.DependencyKind) {
	e.teardown(kind, nil)

	e.mu.Lock()
	st := e.stateLocked(kind)
	st.Phase = PhaseResolved
	st.Automatic = false
	st.LastError = ""
	delete(e.prompts, kind)
	snapshot := *st
	e.mu.Unlock()

	e.logger.WithField("dependency", kind).Info("dependency resolved")
	e.changed(snapshot)
}

func (e *Ensurer) markMissing(kind backend.DependencyKind, reason string) {
	e.mu.Lock()
	st := e.stateLocked(kind)
	st.Phase = PhaseMissing
	st.Automatic = false
	st.LastError = reason
	e.prompts[kind] = PromptMissing
	snapshot := *st
	e.mu.Unlock()

	e.logger.WithField("dependency", kind).Info("dependency missing")
	e.changed(snapshot)
	e.prompt(Prompt{Kind: kind, Reason: PromptMissing})
}

func (e *Ensurer) update(kind backend.DependencyKind, fn func(*State)) {
	e.mu.Lock()
	st := e.stateLocked(kind)
	fn(st)
	snapshot := *st
	e.mu.Unlock()
	e.changed(snapshot)
}

// teardown closes kind's listeners. When only is non-nil the group is
// closed only if it is still the current one.
func (e *Ensurer) teardown(kind backend.DependencyKind, only *events.Group) {
	e.mu.Lock()
	g := e.groups[kind]
	if g == nil || (only != nil && g != only) {
		e.mu.Unlock()
		if only != nil {
			only.Close()
		}
		return
	}
	delete(e.groups, kind)
	e.mu.Unlock()
	g.Close()
}

func (e *Ensurer) detect(ctx context.Context, kind backend.DependencyKind) bool {
	ok, err := e.prober.DetectDependency(ctx, kind)
	if err != nil {
		e.logger.WithField("dependency", kind).Debugf("detection failed, treating as missing: %v", err)
		return false
	}
	return ok
}

func (e *Ensurer) automaticPendingLocked() bool {
	for _, st := range e.states {
		if st.Automatic && st.Phase.Busy() {
			return true
		}
	}
	return false
}

func (e *Ensurer) stateLocked(kind backend.DependencyKind) *State {
	st, ok := e.states[kind]
	if !ok {
		st = &State{Kind: kind, Phase: PhaseUnchecked}
		e.states[kind] = st
	}
	return st
}

func (e *Ensurer) changed(st State) {
	if e.opts.OnChange != nil {
		e.opts.OnChange(st)
	}
}

func (e *Ensurer) prompt(p Prompt) {
	if e.opts.OnPrompt != nil {
		e.opts.OnPrompt(p)
	}
}
