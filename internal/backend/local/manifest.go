package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gamedeck/internal/backend"
)

// ManifestEntry records a downloaded artifact.
type ManifestEntry struct {
	Version      string              `json:"version"`
	Type         backend.VersionType `json:"type"`
	Path         string              `json:"path"`
	URL          string              `json:"url"`
	Checksum     string              `json:"checksum,omitempty"`
	DownloadedAt string              `json:"downloaded_at,omitempty"`
}

// Manifest wraps persisted entries keyed by "type:version".
type Manifest struct {
	Entries map[string]ManifestEntry `json:"entries"`
}

func manifestKey(version string, typ backend.VersionType) string {
	return string(typ) + ":" + version
}

func (b *Backend) loadManifest() (Manifest, error) {
	contents, err := os.ReadFile(b.paths.ManifestFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{Entries: map[string]ManifestEntry{}}, nil
		}
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(contents, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	if manifest.Entries == nil {
		manifest.Entries = map[string]ManifestEntry{}
	}
	return manifest, nil
}

func (b *Backend) saveManifest(m Manifest) error {
	path := b.paths.ManifestFile
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare manifest directory: %w", err)
	}

	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return writeFileAtomic(path, buf)
}

// recordDownload adds entry under the manifest lock.
func (b *Backend) recordDownload(entry ManifestEntry) error {
	b.manifestMu.Lock()
	defer b.manifestMu.Unlock()

	manifest, err := b.loadManifest()
	if err != nil {
		return err
	}
	if entry.DownloadedAt == "" {
		entry.DownloadedAt = time.Now().UTC().Format(time.RFC3339)
	}
	manifest.Entries[manifestKey(entry.Version, entry.Type)] = entry
	return b.saveManifest(manifest)
}

// lookupDownload returns the manifest entry for a key whose file is still
// on disk.
func (b *Backend) lookupDownload(version string, typ backend.VersionType) (ManifestEntry, bool, error) {
	b.manifestMu.Lock()
	manifest, err := b.loadManifest()
	b.manifestMu.Unlock()
	if err != nil {
		return ManifestEntry{}, false, err
	}

	entry, ok := manifest.Entries[manifestKey(version, typ)]
	if !ok {
		return ManifestEntry{}, false, nil
	}
	if _, err := os.Stat(entry.Path); err != nil {
		return ManifestEntry{}, false, nil
	}
	return entry, true, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
