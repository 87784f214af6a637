package cli

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"gamedeck/internal/backend"
	"gamedeck/internal/backend/local"
	"gamedeck/internal/config"
	"gamedeck/internal/deps"
	"gamedeck/internal/events"
	"gamedeck/internal/install"
	"gamedeck/internal/logx"
	"gamedeck/internal/mirror"
	"gamedeck/internal/paths"
	"gamedeck/internal/status"
)

// app is the wired engine shared by every command.
type app struct {
	paths  paths.DataPaths
	cfg    config.Config
	logger *log.Logger
	closer io.Closer

	bus     *events.Bus
	local   *local.Backend
	backend backend.Backend
	caps    backend.Capabilities
	cache   *status.Cache
}

func resolvePaths() (paths.DataPaths, error) {
	pp, err := paths.Resolve(rootDir)
	if err != nil {
		return paths.DataPaths{}, err
	}
	if configFile != "" {
		return pp.WithConfigFile(configFile)
	}
	return pp, nil
}

func loadConfig() (paths.DataPaths, config.Config, error) {
	pp, err := resolvePaths()
	if err != nil {
		return paths.DataPaths{}, config.Config{}, err
	}
	cfg, err := config.Load(pp.ConfigFile)
	if err != nil {
		return paths.DataPaths{}, config.Config{}, err
	}
	for _, r := range cfg.Validate() {
		if r.Level == "error" {
			return paths.DataPaths{}, config.Config{}, fmt.Errorf("invalid config %s: %s", pp.ConfigFile, r.Message)
		}
	}
	return pp, cfg, nil
}

// newApp resolves paths and config, opens the log file and wires the
// backend, the event bus and the status cache. Installed folders are
// loaded into the cache as descriptors.
func newApp(ctx context.Context) (*app, error) {
	pp, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := pp.EnsureDirs(); err != nil {
		return nil, err
	}

	logger, closer, err := logx.New(pp, cfg.Logging)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(logger)
	lb := local.New(local.Options{
		Paths:  pp,
		Config: cfg,
		Bus:    bus,
		Logger: logger,
	})
	be, caps := backend.Resolve(lb, logger)

	a := &app{
		paths:   pp,
		cfg:     cfg,
		logger:  logger,
		closer:  closer,
		bus:     bus,
		local:   lb,
		backend: be,
		caps:    caps,
		cache:   status.New(be, cfg.Status.Concurrency, logger),
	}
	if err := a.loadDescriptors(ctx); err != nil {
		a.Close()
		return nil, err
	}
	logger.WithFields(log.Fields{
		"root":         pp.Root,
		"config":       pp.ConfigFile,
		"capabilities": fmt.Sprintf("%+v", caps),
	}).Debug("engine ready")
	return a, nil
}

func (a *app) loadDescriptors(ctx context.Context) error {
	folders, err := a.local.ListVersions(ctx)
	if err != nil {
		return err
	}
	ds := make([]status.Descriptor, 0, len(folders))
	for _, f := range folders {
		ds = append(ds, status.Descriptor{
			Name:             f.Metadata.Name,
			DisplayVersion:   f.Metadata.SourceVersion,
			Type:             f.Metadata.Type,
			IsRegistered:     f.Metadata.Registered,
			IsolationEnabled: f.Metadata.Isolation,
		})
	}
	a.cache.ReplaceDescriptors(ds)
	return nil
}

func (a *app) newOrchestrator(onProgress func(install.Progress)) *install.Orchestrator {
	return install.New(a.backend, a.cache, a.bus, install.Options{
		Logger:     a.logger,
		OnProgress: onProgress,
	})
}

func (a *app) newEnsurer(onChange func(deps.State)) *deps.Ensurer {
	return deps.New(a.backend, a.bus, deps.Options{
		AutoInstall: a.cfg.AutoInstall,
		Logger:      a.logger,
		OnChange:    onChange,
	})
}

func (a *app) newSelector() *mirror.Selector {
	return mirror.NewSelector(a.backend, mirror.Options{
		Timeout:        a.cfg.Mirrors.Timeout(),
		PriorityDomain: a.cfg.Mirrors.PriorityDomain,
		Logger:         a.logger,
	})
}

// Close waits for background backend work and closes the log file.
func (a *app) Close() {
	a.local.Wait()
	if a.closer != nil {
		a.closer.Close()
	}
}
