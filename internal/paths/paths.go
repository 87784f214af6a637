package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// EnvHome overrides the default data root.
const EnvHome = "GAMEDECK_HOME"

// MetadataFileName is the metadata file written into every version folder.
const MetadataFileName = "version.yaml"

// DataPaths captures canonical locations under a gamedeck data root.
type DataPaths struct {
	Root         string
	ConfigFile   string
	VersionsDir  string
	DownloadsDir string
	DataDir      string
	LoadersDir   string
	LogsDir      string
	ManifestFile string
}

// Resolve determines the data root from the optional --root flag, then the
// GAMEDECK_HOME environment variable, then the per-OS default.
func Resolve(rootFlag string) (DataPaths, error) {
	var (
		root string
		err  error
	)

	switch {
	case rootFlag != "":
		root, err = filepath.Abs(rootFlag)
	case os.Getenv(EnvHome) != "":
		root, err = filepath.Abs(os.Getenv(EnvHome))
		if err != nil {
			err = fmt.Errorf("resolve %s: %w", EnvHome, err)
		}
	default:
		root, err = defaultRoot()
	}
	if err != nil {
		return DataPaths{}, fmt.Errorf("resolve data root: %w", err)
	}

	return New(root), nil
}

func defaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("detect user home: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "GameDeck"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "GameDeck"), nil
		}
		return filepath.Join(home, "AppData", "Local", "GameDeck"), nil
	default:
		return filepath.Join(home, ".local", "share", "gamedeck"), nil
	}
}

// New lays out the standard directories below root.
func New(root string) DataPaths {
	return DataPaths{
		Root:         root,
		ConfigFile:   filepath.Join(root, "gamedeck.yaml"),
		VersionsDir:  filepath.Join(root, "versions"),
		DownloadsDir: filepath.Join(root, "downloads"),
		DataDir:      filepath.Join(root, "data"),
		LoadersDir:   filepath.Join(root, "loaders"),
		LogsDir:      filepath.Join(root, "logs"),
		ManifestFile: filepath.Join(root, "downloads", "manifest.json"),
	}
}

// WithConfigFile points ConfigFile at an explicit --config value. Relative
// paths resolve against the working directory.
func (p DataPaths) WithConfigFile(file string) (DataPaths, error) {
	if file == "" {
		return p, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return p, fmt.Errorf("resolve config path: %w", err)
	}
	p.ConfigFile = abs
	return p, nil
}

// VersionDir is the folder of the installed version name.
func (p DataPaths) VersionDir(name string) string {
	return filepath.Join(p.VersionsDir, name)
}

// MetadataFile is the metadata file inside version folder name.
func (p DataPaths) MetadataFile(name string) string {
	return filepath.Join(p.VersionDir(name), MetadataFileName)
}

// VersionDataDir is the isolated user data directory of version name.
func (p DataPaths) VersionDataDir(name string) string {
	return filepath.Join(p.VersionDir(name), "data")
}

// BaseDataDir is the shared user data directory of the release or preview
// channel.
func (p DataPaths) BaseDataDir(preview bool) string {
	if preview {
		return filepath.Join(p.DataDir, "preview")
	}
	return filepath.Join(p.DataDir, "release")
}

// EnsureDirs creates the standard hierarchy below Root.
func (p DataPaths) EnsureDirs() error {
	dirs := []string{p.Root, p.VersionsDir, p.DownloadsDir, p.DataDir, p.LoadersDir, p.LogsDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
