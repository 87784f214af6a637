package backend

import (
	"fmt"
	"strings"
	"time"
)

// VersionType distinguishes release builds from preview builds.
type VersionType string

const (
	TypeRelease VersionType = "release"
	TypePreview VersionType = "preview"
)

// ParseVersionType accepts "release"/"preview" in any case. Empty means release.
func ParseVersionType(value string) (VersionType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "release":
		return TypeRelease, nil
	case "preview", "beta":
		return TypePreview, nil
	default:
		return "", fmt.Errorf("unknown version type %q", value)
	}
}

// IsPreview reports whether t is the preview channel.
func (t VersionType) IsPreview() bool {
	return t == TypePreview
}

// Label is the human readable name substituted into user messages.
func (t VersionType) Label() string {
	if t == TypePreview {
		return "Preview"
	}
	return "Release"
}

// DependencyKind names an optional runtime component the game may require.
type DependencyKind string

const (
	DependencyInputDriver  DependencyKind = "gameinput"
	DependencyRuntime      DependencyKind = "vcruntime"
	DependencyStoreService DependencyKind = "gamingservices"
)

// DependencyKinds lists every kind in a stable order.
func DependencyKinds() []DependencyKind {
	return []DependencyKind{DependencyInputDriver, DependencyRuntime, DependencyStoreService}
}

// ParseDependencyKind resolves a kind from its name.
func ParseDependencyKind(value string) (DependencyKind, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, kind := range DependencyKinds() {
		if string(kind) == value {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown dependency %q", value)
}

// VersionMetadata is written into a freshly extracted version folder.
type VersionMetadata struct {
	Name          string      `yaml:"name" json:"name"`
	SourceVersion string      `yaml:"source_version" json:"source_version"`
	Type          VersionType `yaml:"type" json:"type"`
	Isolation     bool        `yaml:"isolation" json:"isolation"`
	EnableConsole bool        `yaml:"enable_console" json:"enable_console"`
	EditorMode    bool        `yaml:"editor_mode" json:"editor_mode"`
	Registered    bool        `yaml:"registered" json:"registered"`
}

// LatencyResult is a single mirror measurement reported by the backend.
// LatencyMs is nil when no timing could be taken.
type LatencyResult struct {
	URL       string `json:"url"`
	LatencyMs *int64 `json:"latency_ms,omitempty"`
	OK        bool   `json:"ok"`
}

// VersionStatus reports whether a version key is downloaded and/or installed.
type VersionStatus struct {
	IsDownloaded bool `json:"is_downloaded"`
	IsInstalled  bool `json:"is_installed"`
}

// DownloadRequest asks the backend to fetch an installer artifact. Progress
// is reported through "<ID>.download.*" notifications.
type DownloadRequest struct {
	ID      string
	URL     string
	Version string
	Type    VersionType
}

// InstalledFolder describes a version folder discovered on disk.
type InstalledFolder struct {
	Metadata  VersionMetadata
	Path      string
	UpdatedAt time.Time
}
