package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gamedeck/internal/backend"
	"gamedeck/internal/events"
	"gamedeck/internal/paths"
)

// DetectDependency reports kind as present when any configured path
// exists or any detect command runs successfully. Kinds without rules are
// reported missing.
func (b *Backend) DetectDependency(ctx context.Context, kind backend.DependencyKind) (bool, error) {
	dep := b.cfg.Dependency(kind)

	for _, p := range dep.DetectPaths {
		p = os.ExpandEnv(p)
		if ok, _ := paths.FileExists(p); ok {
			return true, nil
		}
		if ok, _ := paths.DirExists(p); ok {
			return true, nil
		}
	}

	var lastErr error
	for _, cmd := range dep.DetectCommands {
		if len(cmd) == 0 {
			continue
		}
		bin, err := b.runner.LookPath(cmd[0])
		if err != nil {
			continue
		}
		if _, err := b.runner.Run(ctx, bin, cmd[1:], RunOptions{}); err != nil {
			lastErr = err
			continue
		}
		return true, nil
	}
	if lastErr != nil && ctx.Err() != nil {
		return false, ctx.Err()
	}
	return false, nil
}

// BeginInteractiveDependencyInstall starts the installer for kind in the
// background. With an installer_url the installer is downloaded and run;
// with only a store_url the store page is opened and the user confirms
// once done.
func (b *Backend) BeginInteractiveDependencyInstall(ctx context.Context, kind backend.DependencyKind) error {
	dep := b.cfg.Dependency(kind)
	if dep.InstallerURL == "" && dep.StoreURL == "" {
		return backend.Fail("install dependency", backend.ErrDependencyInstaller, fmt.Errorf("no installer configured for %s", kind))
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.runDependencyInstall(context.WithoutCancel(ctx), kind)
	}()
	return nil
}

func (b *Backend) runDependencyInstall(ctx context.Context, kind backend.DependencyKind) {
	dep := b.cfg.Dependency(kind)
	source := string(kind)
	logger := b.logger.WithField("dependency", kind)

	b.emit(events.Name(events.KindEnsureStart, source), nil)

	if dep.InstallerURL == "" {
		if err := b.openURL(ctx, dep.StoreURL); err != nil {
			logger.Warnf("open store page: %v", err)
			b.emit(events.Name(events.KindEnsureDone, source), events.EnsureDone{Message: err.Error()})
			return
		}
		b.emit(events.Name(events.KindDownloadDone, source), nil)
		return
	}

	dest := filepath.Join(b.paths.DownloadsDir, "deps", source+artifactExt(dep.InstallerURL))
	if _, err := b.fetch(ctx, dep.InstallerURL, dest, source); err != nil {
		logger.Warnf("download installer: %v", err)
		b.emit(events.Name(events.KindEnsureDone, source), events.EnsureDone{Message: err.Error()})
		return
	}
	b.emit(events.Name(events.KindDownloadDone, source), nil)

	if runtime.GOOS != "windows" {
		_ = os.Chmod(dest, 0o755)
	}
	logger.Info("running dependency installer")
	if _, err := b.runner.Run(ctx, dest, dep.InstallerArgs, RunOptions{}); err != nil {
		logger.Warnf("installer exited: %v", err)
		b.emit(events.Name(events.KindEnsureDone, source), events.EnsureDone{Message: err.Error()})
		return
	}

	ok, _ := b.DetectDependency(ctx, kind)
	done := events.EnsureDone{Success: ok}
	if !ok {
		done.Message = "installer finished but the dependency was not detected"
	}
	b.emit(events.Name(events.KindEnsureDone, source), done)
}

func (b *Backend) openURL(ctx context.Context, target string) error {
	var (
		command string
		args    []string
	)
	switch runtime.GOOS {
	case "windows":
		command, args = "rundll32", []string{"url.dll,FileProtocolHandler", target}
	case "darwin":
		command, args = "open", []string{target}
	default:
		command, args = "xdg-open", []string{target}
	}
	_, err := b.runner.Run(ctx, command, args, RunOptions{})
	return err
}
