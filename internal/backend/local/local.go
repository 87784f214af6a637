// Package local implements the backend on the local filesystem: version
// folders under the data root, artifacts fetched over HTTP, dependencies
// detected through PATH and file probes.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"gamedeck/internal/backend"
	"gamedeck/internal/config"
	"gamedeck/internal/events"
	"gamedeck/internal/paths"
)

const maxNameLength = 64

var _ backend.Backend = (*Backend)(nil)

// Options configures a Backend.
type Options struct {
	Paths  paths.DataPaths
	Config config.Config
	Bus    *events.Bus
	Logger log.FieldLogger
	Runner Runner
	Client *http.Client

	// RetryInterval is the first backoff interval between download
	// attempts.
	RetryInterval time.Duration
}

// Backend is the filesystem backend. Notifications are emitted by name on
// the bus the same way an out-of-process backend would send them.
type Backend struct {
	paths         paths.DataPaths
	cfg           config.Config
	bus           *events.Bus
	logger        log.FieldLogger
	runner        Runner
	client        *http.Client
	retryInterval time.Duration

	manifestMu sync.Mutex

	mu        sync.Mutex
	downloads map[string]context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a Backend rooted at opts.Paths.
func New(opts Options) *Backend {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	runner := opts.Runner
	if runner == nil {
		runner = CmdRunner{}
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	retry := opts.RetryInterval
	if retry <= 0 {
		retry = 500 * time.Millisecond
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus(logger)
	}
	return &Backend{
		paths:         opts.Paths,
		cfg:           opts.Config,
		bus:           bus,
		logger:        logger.WithField("component", "backend"),
		runner:        runner,
		client:        client,
		retryInterval: retry,
		downloads:     make(map[string]context.CancelFunc),
	}
}

// Wait blocks until background downloads and installers have finished.
func (b *Backend) Wait() {
	b.wg.Wait()
}

func (b *Backend) emit(name string, payload any) {
	var raw []byte
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			b.logger.Warnf("encode %s: %v", name, err)
			return
		}
		raw = buf
	}
	_ = b.bus.Emit(name, raw)
}

// ValidateFolderName rejects names that cannot be used as a folder or that
// are already taken.
func (b *Backend) ValidateFolderName(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	exists, err := paths.DirExists(b.paths.VersionDir(name))
	if err != nil {
		return backend.Fail("validate name", backend.ErrIO, err)
	}
	if exists {
		return backend.Fail("validate name", backend.ErrNameExists, fmt.Errorf("%q", name))
	}
	return nil
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return backend.Fail("validate name", backend.ErrNameRequired, nil)
	}
	invalid := name == "." || name == ".." ||
		len(name) > maxNameLength ||
		strings.ContainsAny(name, `<>:"/\|?*`) ||
		strings.HasSuffix(name, ".") || strings.HasSuffix(name, " ") ||
		strings.HasPrefix(name, " ")
	for _, r := range name {
		if r < 0x20 {
			invalid = true
		}
	}
	if invalid {
		return backend.Fail("validate name", backend.ErrNameInvalid, fmt.Errorf("%q", name))
	}
	return nil
}

// ResolveDownloadedArtifact returns the recorded artifact for the key or ""
// when none was downloaded.
func (b *Backend) ResolveDownloadedArtifact(_ context.Context, version string, typ backend.VersionType) (string, error) {
	entry, ok, err := b.lookupDownload(version, typ)
	if err != nil {
		return "", backend.Fail("resolve artifact", backend.ErrIO, err)
	}
	if !ok {
		return "", nil
	}
	return entry.Path, nil
}

// PersistVersionMetadata writes version.yaml into the version folder.
func (b *Backend) PersistVersionMetadata(_ context.Context, meta backend.VersionMetadata) error {
	dir := b.paths.VersionDir(meta.Name)
	if ok, _ := paths.DirExists(dir); !ok {
		return backend.Fail("persist metadata", backend.ErrIO, fmt.Errorf("version folder %q missing", meta.Name))
	}

	buf, err := yaml.Marshal(&meta)
	if err != nil {
		return backend.Fail("persist metadata", backend.ErrIO, err)
	}
	if err := writeFileAtomic(b.paths.MetadataFile(meta.Name), buf); err != nil {
		return backend.Fail("persist metadata", backend.ErrIO, err)
	}
	return nil
}

// ReadMetadata loads version.yaml from folder name.
func (b *Backend) ReadMetadata(name string) (backend.VersionMetadata, error) {
	contents, err := os.ReadFile(b.paths.MetadataFile(name))
	if err != nil {
		return backend.VersionMetadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var meta backend.VersionMetadata
	if err := yaml.Unmarshal(contents, &meta); err != nil {
		return backend.VersionMetadata{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if meta.Name == "" {
		meta.Name = name
	}
	if meta.Type == "" {
		meta.Type = backend.TypeRelease
	}
	return meta, nil
}

// ListVersions scans the versions directory. Folders without readable
// metadata are skipped.
func (b *Backend) ListVersions(_ context.Context) ([]backend.InstalledFolder, error) {
	entries, err := os.ReadDir(b.paths.VersionsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read versions dir: %w", err)
	}

	var out []backend.InstalledFolder
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		meta, err := b.ReadMetadata(entry.Name())
		if err != nil {
			b.logger.WithField("folder", entry.Name()).Debugf("skip version folder: %v", err)
			continue
		}
		var updated time.Time
		if info, err := entry.Info(); err == nil {
			updated = info.ModTime()
		}
		out = append(out, backend.InstalledFolder{
			Metadata:  meta,
			Path:      b.paths.VersionDir(entry.Name()),
			UpdatedAt: updated,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metadata.Name < out[j].Metadata.Name })
	return out, nil
}

// CopyDataFromBase copies the shared data of the channel into the
// isolated data directory of target.
func (b *Backend) CopyDataFromBase(_ context.Context, preview bool, target string) error {
	return b.copyData(b.paths.BaseDataDir(preview), target)
}

// CopyDataFromVersion copies the isolated data of installed version src.
func (b *Backend) CopyDataFromVersion(_ context.Context, src, target string) error {
	if err := checkName(src); err != nil {
		return backend.Fail("copy data", backend.ErrInheritSource, err)
	}
	return b.copyData(b.paths.VersionDataDir(src), target)
}

func (b *Backend) copyData(src, target string) error {
	ok, err := paths.DirExists(src)
	if err != nil {
		return backend.Fail("copy data", backend.ErrIO, err)
	}
	if !ok {
		return backend.Fail("copy data", backend.ErrInheritSource, fmt.Errorf("%s", src))
	}
	if err := copyTree(src, b.paths.VersionDataDir(target)); err != nil {
		return backend.Fail("copy data", backend.ErrIO, err)
	}
	return nil
}

// InstallContentLoader unpacks loaders/<version>.zip, or loaders/default.zip,
// into the loader directory of target.
func (b *Backend) InstallContentLoader(ctx context.Context, version, target string) error {
	candidates := []string{
		filepath.Join(b.paths.LoadersDir, version+".zip"),
		filepath.Join(b.paths.LoadersDir, "default.zip"),
	}
	for _, archive := range candidates {
		if ok, _ := paths.FileExists(archive); !ok {
			continue
		}
		dest := filepath.Join(b.paths.VersionDir(target), "loader")
		if err := extractArchive(ctx, archive, dest, nil); err != nil {
			return backend.Fail("install loader", backend.ErrExtract, err)
		}
		return nil
	}
	return backend.Fail("install loader", backend.ErrLoaderUnavailable, fmt.Errorf("no loader for %s", version))
}

// DeleteVersionFolder removes folder name and everything below it.
func (b *Backend) DeleteVersionFolder(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.RemoveAll(b.paths.VersionDir(name)); err != nil {
		return backend.Fail("delete version", backend.ErrIO, err)
	}
	return nil
}

// QueryVersionStatus reports whether the key has a recorded artifact and
// whether any version folder tracks it.
func (b *Backend) QueryVersionStatus(ctx context.Context, version string, typ backend.VersionType) (backend.VersionStatus, error) {
	var st backend.VersionStatus

	_, downloaded, err := b.lookupDownload(version, typ)
	if err != nil {
		return st, backend.Fail("query status", backend.ErrIO, err)
	}
	st.IsDownloaded = downloaded

	folders, err := b.ListVersions(ctx)
	if err != nil {
		return st, backend.Fail("query status", backend.ErrIO, err)
	}
	for _, f := range folders {
		if f.Metadata.SourceVersion == version && f.Metadata.Type == typ {
			st.IsInstalled = true
			break
		}
	}
	return st, nil
}
