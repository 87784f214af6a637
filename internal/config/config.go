package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gamedeck/internal/backend"
)

// Config captures the settings for a gamedeck data root.
type Config struct {
	Version      int                `yaml:"version"`
	Mirrors      MirrorsConfig      `yaml:"mirrors"`
	Dependencies DependenciesConfig `yaml:"dependencies"`
	Status       StatusConfig       `yaml:"status"`
	Logging      LoggingConfig      `yaml:"logging"`
	Install      InstallConfig      `yaml:"install"`
	Download     DownloadConfig     `yaml:"download"`
}

// MirrorsConfig lists the artifact mirrors and how they are probed.
type MirrorsConfig struct {
	URLs           []string `yaml:"urls"`
	PriorityDomain string   `yaml:"priority_domain"`
	TimeoutMs      int      `yaml:"timeout_ms"`
}

// Timeout returns the shared probe timeout.
func (m MirrorsConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutMs) * time.Millisecond
}

// DependenciesConfig maps a dependency kind to its detection and installer
// settings.
type DependenciesConfig map[backend.DependencyKind]DependencyConfig

// DependencyConfig describes how one dependency is detected and installed.
// A dependency counts as present when any detect command succeeds or any
// detect path exists.
type DependencyConfig struct {
	DetectCommands [][]string `yaml:"detect_commands,omitempty"`
	DetectPaths    []string   `yaml:"detect_paths,omitempty"`
	InstallerURL   string     `yaml:"installer_url,omitempty"`
	InstallerArgs  []string   `yaml:"installer_args,omitempty"`
	StoreURL       string     `yaml:"store_url,omitempty"`
	AutoInstall    bool       `yaml:"auto_install,omitempty"`
}

// StatusConfig tunes version status refreshes.
type StatusConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// LoggingConfig controls the log file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// InstallConfig holds the feature flags written into new version metadata.
type InstallConfig struct {
	EnableConsole bool `yaml:"enable_console"`
	EditorMode    bool `yaml:"editor_mode"`
}

// DownloadConfig controls artifact downloads.
type DownloadConfig struct {
	Retries int `yaml:"retries"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Version: 1,
		Mirrors: MirrorsConfig{
			TimeoutMs: 3000,
		},
		Dependencies: DependenciesConfig{
			backend.DependencyInputDriver: {
				DetectCommands: [][]string{{"gameinput", "--version"}},
			},
			backend.DependencyRuntime: {
				DetectCommands: [][]string{{"vcruntime", "--version"}},
			},
			backend.DependencyStoreService: {
				DetectCommands: [][]string{{"gamingservices", "--version"}},
			},
		},
		Status: StatusConfig{
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Download: DownloadConfig{
			Retries: 3,
		},
	}
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults ensures nested fields fall back to sensible defaults when the
// YAML omits them.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if c.Mirrors.TimeoutMs <= 0 {
		c.Mirrors.TimeoutMs = defaults.Mirrors.TimeoutMs
	}
	c.Mirrors.PriorityDomain = strings.ToLower(strings.TrimSpace(c.Mirrors.PriorityDomain))
	if c.Dependencies == nil {
		c.Dependencies = DependenciesConfig{}
	}
	for kind, dep := range defaults.Dependencies {
		if _, ok := c.Dependencies[kind]; !ok {
			c.Dependencies[kind] = dep
		}
	}
	if c.Status.Concurrency <= 0 {
		c.Status.Concurrency = defaults.Status.Concurrency
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaults.Logging.MaxSizeMB
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = defaults.Logging.MaxBackups
	}
	if c.Download.Retries <= 0 {
		c.Download.Retries = defaults.Download.Retries
	}
}

// Dependency returns the settings for kind.
func (c Config) Dependency(kind backend.DependencyKind) DependencyConfig {
	return c.Dependencies[kind]
}

// AutoInstall reports whether kind opted into automatic install at startup.
func (c Config) AutoInstall(kind backend.DependencyKind) bool {
	return c.Dependency(kind).AutoInstall
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}
