package install

import (
	"time"

	"gamedeck/internal/backend"
)

// Stage is the current step of an install session.
type Stage string

const (
	StageResolving          Stage = "resolving"
	StageExtracting         Stage = "extracting"
	StagePersistingMetadata Stage = "persisting_metadata"
	StageInheriting         Stage = "inheriting"
	StageInstallingLoader   Stage = "installing_loader"
	StageDone               Stage = "done"
	StageFailed             Stage = "failed"
)

// Session is the single live install. CreatedFolder turns true once
// extraction succeeded and decides whether a failure rolls back.
type Session struct {
	ID                 string            `json:"id"`
	TargetName         string            `json:"target_name"`
	SourceArtifactPath string            `json:"source_artifact_path,omitempty"`
	CreatedFolder      bool              `json:"created_folder"`
	Stage              Stage             `json:"stage"`
	Error              backend.ErrorCode `json:"error,omitempty"`
	StartedAt          time.Time         `json:"started_at"`
}

// InheritKind selects where isolated user data is copied from.
type InheritKind string

const (
	InheritNone    InheritKind = ""
	InheritBase    InheritKind = "base"
	InheritVersion InheritKind = "version"
)

// Inherit names the inheritance source. Version is the folder name of
// another installed version when Kind is InheritVersion.
type Inherit struct {
	Kind    InheritKind
	Version string
}

// LoaderRequest asks for a content loader to be installed.
type LoaderRequest struct {
	Enabled bool
}

// Config describes one install.
type Config struct {
	Name         string
	ArtifactPath string
	Version      string
	Type         backend.VersionType
	Isolation    bool
	Inherit      Inherit
	Loader       LoaderRequest

	// Default feature flags persisted with the metadata.
	EnableConsole bool
	EditorMode    bool
}

// InstalledVersion is the result of a successful install.
type InstalledVersion struct {
	Name      string              `json:"name"`
	Version   string              `json:"version"`
	Type      backend.VersionType `json:"type"`
	Isolation bool                `json:"isolation"`
	Loader    bool                `json:"loader"`
}

// Progress is reported to observers while an install runs.
type Progress struct {
	Stage       Stage  `json:"stage"`
	Files       int    `json:"files,omitempty"`
	Bytes       int64  `json:"bytes,omitempty"`
	TotalBytes  int64  `json:"total_bytes,omitempty"`
	CurrentFile string `json:"current_file,omitempty"`
}
