// Package backend defines the contracts of the collaborator that performs
// the actual file, network and system work for version installs. The
// orchestration packages only ever talk to these interfaces.
package backend

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Installer covers the steps of the install pipeline. Methods that can fail
// with a user facing code return an *Error.
type Installer interface {
	ValidateFolderName(ctx context.Context, name string) error
	ResolveDownloadedArtifact(ctx context.Context, version string, versionType VersionType) (string, error)
	ExtractInstaller(ctx context.Context, artifactPath, targetName string, preview bool) error
	PersistVersionMetadata(ctx context.Context, meta VersionMetadata) error
	CopyDataFromBase(ctx context.Context, preview bool, targetName string) error
	CopyDataFromVersion(ctx context.Context, sourceName, targetName string) error
	InstallContentLoader(ctx context.Context, sourceVersion, targetName string) error
	DeleteVersionFolder(ctx context.Context, name string) error
}

// DependencyProber detects and installs runtime dependencies. Installs are
// fire-and-forget; progress arrives as "<kind>.*" notifications.
type DependencyProber interface {
	DetectDependency(ctx context.Context, kind DependencyKind) (bool, error)
	BeginInteractiveDependencyInstall(ctx context.Context, kind DependencyKind) error
}

// MirrorTester measures mirror reachability.
type MirrorTester interface {
	TestMirrorLatencies(ctx context.Context, urls []string, timeout time.Duration) ([]LatencyResult, error)
}

// StatusQuerier reports download/install state for a version key.
type StatusQuerier interface {
	QueryVersionStatus(ctx context.Context, version string, versionType VersionType) (VersionStatus, error)
}

// Downloader fetches installer artifacts.
type Downloader interface {
	StartDownload(ctx context.Context, req DownloadRequest) error
	CancelDownload(ctx context.Context, id string) error
}

// Backend is the full collaborator surface after capability resolution.
type Backend interface {
	Installer
	DependencyProber
	MirrorTester
	StatusQuerier
	Downloader
}

// Capabilities records which parts of the backend the implementation
// actually provides.
type Capabilities struct {
	Installer    bool `json:"installer"`
	Dependencies bool `json:"dependencies"`
	Mirrors      bool `json:"mirrors"`
	Status       bool `json:"status"`
	Downloads    bool `json:"downloads"`
}

// Resolve inspects impl once and returns a complete Backend. Capabilities
// impl lacks are served by stubs that fail with ErrNotImplemented (or
// report "not installed" for probes), so call sites never check for
// presence themselves.
func Resolve(impl any, logger log.FieldLogger) (Backend, Capabilities) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	var (
		caps Capabilities
		r    resolved
	)

	if v, ok := impl.(Installer); ok {
		r.Installer, caps.Installer = v, true
	} else {
		r.Installer = missingInstaller{}
	}
	if v, ok := impl.(DependencyProber); ok {
		r.DependencyProber, caps.Dependencies = v, true
	} else {
		r.DependencyProber = missingProber{}
	}
	if v, ok := impl.(MirrorTester); ok {
		r.MirrorTester, caps.Mirrors = v, true
	} else {
		r.MirrorTester = missingMirrors{}
	}
	if v, ok := impl.(StatusQuerier); ok {
		r.StatusQuerier, caps.Status = v, true
	} else {
		r.StatusQuerier = missingStatus{}
	}
	if v, ok := impl.(Downloader); ok {
		r.Downloader, caps.Downloads = v, true
	} else {
		r.Downloader = missingDownloader{}
	}

	logger.WithFields(log.Fields{
		"installer":    caps.Installer,
		"dependencies": caps.Dependencies,
		"mirrors":      caps.Mirrors,
		"status":       caps.Status,
		"downloads":    caps.Downloads,
	}).Debug("backend capabilities resolved")

	return r, caps
}

type resolved struct {
	Installer
	DependencyProber
	MirrorTester
	StatusQuerier
	Downloader
}

func notImplemented(op string) error {
	return Fail(op, ErrNotImplemented, nil)
}

type missingInstaller struct{}

func (missingInstaller) ValidateFolderName(context.Context, string) error {
	return notImplemented("validate folder name")
}

func (missingInstaller) ResolveDownloadedArtifact(context.Context, string, VersionType) (string, error) {
	return "", nil
}

func (missingInstaller) ExtractInstaller(context.Context, string, string, bool) error {
	return notImplemented("extract installer")
}

func (missingInstaller) PersistVersionMetadata(context.Context, VersionMetadata) error {
	return notImplemented("persist version metadata")
}

func (missingInstaller) CopyDataFromBase(context.Context, bool, string) error {
	return notImplemented("copy base data")
}

func (missingInstaller) CopyDataFromVersion(context.Context, string, string) error {
	return notImplemented("copy version data")
}

func (missingInstaller) InstallContentLoader(context.Context, string, string) error {
	return notImplemented("install content loader")
}

func (missingInstaller) DeleteVersionFolder(context.Context, string) error {
	return notImplemented("delete version folder")
}

type missingProber struct{}

func (missingProber) DetectDependency(context.Context, DependencyKind) (bool, error) {
	return false, nil
}

func (missingProber) BeginInteractiveDependencyInstall(context.Context, DependencyKind) error {
	return notImplemented("install dependency")
}

type missingMirrors struct{}

func (missingMirrors) TestMirrorLatencies(_ context.Context, urls []string, _ time.Duration) ([]LatencyResult, error) {
	results := make([]LatencyResult, len(urls))
	for i, u := range urls {
		results[i] = LatencyResult{URL: u}
	}
	return results, nil
}

type missingStatus struct{}

func (missingStatus) QueryVersionStatus(context.Context, string, VersionType) (VersionStatus, error) {
	return VersionStatus{}, notImplemented("query version status")
}

type missingDownloader struct{}

func (missingDownloader) StartDownload(context.Context, DownloadRequest) error {
	return notImplemented("start download")
}

func (missingDownloader) CancelDownload(context.Context, string) error {
	return nil
}
