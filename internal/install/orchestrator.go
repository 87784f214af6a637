// Package install sequences version installs on top of the backend and
// rolls back partially applied installs.
package install

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"gamedeck/internal/backend"
	"gamedeck/internal/events"
	"gamedeck/internal/status"
)

// ErrInstallInProgress is returned when Install or Delete is called while
// another install is running.
var ErrInstallInProgress = errors.New("install already in progress")

// Options configures an Orchestrator.
type Options struct {
	Logger     log.FieldLogger
	OnProgress func(Progress)
}

// Orchestrator runs at most one install at a time.
type Orchestrator struct {
	backend    backend.Installer
	cache      *status.Cache
	bus        *events.Bus
	logger     log.FieldLogger
	onProgress func(Progress)

	inFlight atomic.Bool

	mu      sync.RWMutex
	session *Session
}

// New constructs an Orchestrator.
func New(be backend.Installer, cache *status.Cache, bus *events.Bus, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Orchestrator{
		backend:    be,
		cache:      cache,
		bus:        bus,
		logger:     logger,
		onProgress: opts.OnProgress,
	}
}

// Busy reports whether an install is running. UIs disable their install
// trigger while it is true.
func (o *Orchestrator) Busy() bool {
	return o.inFlight.Load()
}

// Session returns a copy of the current or most recent session.
func (o *Orchestrator) Session() (Session, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.session == nil {
		return Session{}, false
	}
	return *o.session, true
}

// Install runs the pipeline: validate, resolve artifact, extract, persist
// metadata, inherit data, install the content loader, refresh status.
// Each step starts only after the previous one succeeded. Any failure
// after extraction deletes the new folder before the original error is
// returned.
func (o *Orchestrator) Install(ctx context.Context, cfg Config) (InstalledVersion, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return InstalledVersion{}, ErrInstallInProgress
	}
	defer o.inFlight.Store(false)

	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Type == "" {
		cfg.Type = backend.TypeRelease
	}

	sess := &Session{
		ID:                 uuid.NewString(),
		TargetName:         cfg.Name,
		SourceArtifactPath: cfg.ArtifactPath,
		Stage:              StageResolving,
		StartedAt:          time.Now(),
	}
	o.mu.Lock()
	o.session = sess
	o.mu.Unlock()

	logger := o.logger.WithFields(log.Fields{"session": sess.ID, "name": cfg.Name, "version": cfg.Version})

	group := o.bus.NewGroup()
	defer group.Close()
	group.On(events.KindExtractProgress, events.SourceExtract, func(ev events.Event) {
		p, _ := ev.Payload.(events.ExtractProgress)
		o.report(Progress{
			Stage:       StageExtracting,
			Files:       p.Files,
			Bytes:       p.Bytes,
			TotalBytes:  p.TotalBytes,
			CurrentFile: p.CurrentFile,
		})
	})

	logger.Info("install started")
	if err := o.run(ctx, sess, cfg); err != nil {
		o.rollback(ctx, sess, logger)
		o.update(sess, func(s *Session) {
			s.Stage = StageFailed
			s.Error = backend.CodeOf(err)
		})
		logger.WithField("code", backend.CodeOf(err)).Warnf("install failed: %v", err)
		return InstalledVersion{}, err
	}

	o.refresh(ctx, cfg, logger)

	o.update(sess, func(s *Session) {
		s.Stage = StageDone
		s.CreatedFolder = false
	})
	o.report(Progress{Stage: StageDone})
	logger.Info("install finished")

	return InstalledVersion{
		Name:      cfg.Name,
		Version:   cfg.Version,
		Type:      cfg.Type,
		Isolation: cfg.Isolation,
		Loader:    cfg.Loader.Enabled,
	}, nil
}

func (o *Orchestrator) run(ctx context.Context, sess *Session, cfg Config) error {
	if cfg.Name == "" {
		return backend.Fail("validate name", backend.ErrNameRequired, nil)
	}
	if err := o.backend.ValidateFolderName(ctx, cfg.Name); err != nil {
		return err
	}

	o.enter(sess, StageResolving)
	artifact := cfg.ArtifactPath
	if artifact == "" {
		resolved, err := o.backend.ResolveDownloadedArtifact(ctx, cfg.Version, cfg.Type)
		if err != nil {
			return err
		}
		if resolved == "" {
			return backend.Fail("resolve artifact", backend.ErrMsixvcNotSpecified, nil)
		}
		artifact = resolved
		o.update(sess, func(s *Session) { s.SourceArtifactPath = resolved })
	}

	o.enter(sess, StageExtracting)
	if err := o.backend.ExtractInstaller(ctx, artifact, cfg.Name, cfg.Type.IsPreview()); err != nil {
		return err
	}
	o.update(sess, func(s *Session) { s.CreatedFolder = true })

	o.enter(sess, StagePersistingMetadata)
	meta := backend.VersionMetadata{
		Name:          cfg.Name,
		SourceVersion: cfg.Version,
		Type:          cfg.Type,
		Isolation:     cfg.Isolation,
		EnableConsole: cfg.EnableConsole,
		EditorMode:    cfg.EditorMode,
	}
	if err := o.backend.PersistVersionMetadata(ctx, meta); err != nil {
		if backend.CodeOf(err) == backend.ErrUnknown {
			return backend.Fail("persist metadata", backend.ErrLaunchGame, err)
		}
		return err
	}

	if cfg.Isolation && cfg.Inherit.Kind != InheritNone {
		o.enter(sess, StageInheriting)
		var err error
		switch cfg.Inherit.Kind {
		case InheritBase:
			err = o.backend.CopyDataFromBase(ctx, cfg.Type.IsPreview(), cfg.Name)
		case InheritVersion:
			err = o.backend.CopyDataFromVersion(ctx, cfg.Inherit.Version, cfg.Name)
		}
		if err != nil {
			return backend.WithLabel(err, cfg.Type.Label())
		}
	}

	if cfg.Loader.Enabled {
		o.enter(sess, StageInstallingLoader)
		if err := o.backend.InstallContentLoader(ctx, cfg.Version, cfg.Name); err != nil {
			return err
		}
	}
	return nil
}

// rollback deletes the new folder when extraction got that far. Its own
// failure is logged and never replaces the original error.
func (o *Orchestrator) rollback(ctx context.Context, sess *Session, logger log.FieldLogger) {
	o.mu.RLock()
	created := sess.CreatedFolder
	o.mu.RUnlock()
	if !created {
		return
	}

	logger.Info("rolling back version folder")
	if err := o.backend.DeleteVersionFolder(context.WithoutCancel(ctx), sess.TargetName); err != nil {
		logger.Warnf("rollback failed: %v", err)
	}
	o.update(sess, func(s *Session) { s.CreatedFolder = false })
}

func (o *Orchestrator) refresh(ctx context.Context, cfg Config, logger log.FieldLogger) {
	if o.cache == nil {
		return
	}
	d := status.Descriptor{
		Name:             cfg.Name,
		DisplayVersion:   cfg.Version,
		Type:             cfg.Type,
		IsolationEnabled: cfg.Isolation,
	}
	o.cache.PutDescriptor(d)

	keys := append(o.cache.Keys(), d.Key())
	if err := o.cache.RefreshAll(ctx, keys); err != nil {
		logger.Warnf("status refresh incomplete: %v", err)
	}
}

// Delete removes an installed version folder and refreshes only its key.
// It shares the install guard because both mutate version folders.
func (o *Orchestrator) Delete(ctx context.Context, name string) error {
	if !o.inFlight.CompareAndSwap(false, true) {
		return ErrInstallInProgress
	}
	defer o.inFlight.Store(false)

	name = strings.TrimSpace(name)
	if name == "" {
		return backend.Fail("delete version", backend.ErrNameRequired, nil)
	}
	if err := o.backend.DeleteVersionFolder(ctx, name); err != nil {
		return err
	}
	o.logger.WithField("name", name).Info("version deleted")

	if o.cache == nil {
		return nil
	}
	if d, ok := o.cache.RemoveDescriptor(name); ok && d.DisplayVersion != "" {
		if _, err := o.cache.RefreshOne(ctx, d.Key()); err != nil {
			o.logger.WithField("name", name).Warnf("status refresh failed: %v", err)
		}
	}
	return nil
}

func (o *Orchestrator) enter(sess *Session, stage Stage) {
	o.update(sess, func(s *Session) { s.Stage = stage })
	o.report(Progress{Stage: stage})
}

func (o *Orchestrator) update(sess *Session, fn func(*Session)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(sess)
}

func (o *Orchestrator) report(p Progress) {
	if o.onProgress != nil {
		o.onProgress(p)
	}
}
