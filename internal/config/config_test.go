package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gamedeck/internal/backend"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "gamedeck.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mirrors.Timeout() != 3*time.Second {
		t.Fatalf("timeout = %v, want 3s", cfg.Mirrors.Timeout())
	}
	if cfg.Status.Concurrency != 4 {
		t.Fatalf("concurrency = %d, want 4", cfg.Status.Concurrency)
	}
	if len(cfg.Dependencies) != len(backend.DependencyKinds()) {
		t.Fatalf("expected a default entry per dependency kind, got %d", len(cfg.Dependencies))
	}
}

func TestLoadMergesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gamedeck.yaml")
	body := `mirrors:
  urls:
    - https://a.mirror.example.cn/game
    - https://cdn.example.com/game
  priority_domain: " Mirror.Example.CN "
dependencies:
  vcruntime:
    detect_paths: ["/opt/vc/runtime.dll"]
    installer_url: https://example.com/vc_redist.exe
    installer_args: ["/quiet"]
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Mirrors.URLs) != 2 {
		t.Fatalf("urls = %v", cfg.Mirrors.URLs)
	}
	if cfg.Mirrors.PriorityDomain != "mirror.example.cn" {
		t.Fatalf("priority domain not normalised: %q", cfg.Mirrors.PriorityDomain)
	}
	if cfg.Mirrors.TimeoutMs != 3000 {
		t.Fatalf("timeout default not applied: %d", cfg.Mirrors.TimeoutMs)
	}
	vc := cfg.Dependency(backend.DependencyRuntime)
	if vc.InstallerURL == "" || len(vc.DetectCommands) != 0 {
		t.Fatalf("configured dependency replaced by default: %+v", vc)
	}
	if len(cfg.Dependency(backend.DependencyInputDriver).DetectCommands) == 0 {
		t.Fatal("missing dependency should fall back to default detection")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.MaxBackups != 3 {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gamedeck.yaml")
	if err := os.WriteFile(path, []byte("mirrors: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Mirrors.URLs = []string{"https://cdn.example.com", "ftp://old.example.com", "https://cdn.example.com"}
	cfg.Logging.Level = "loud"
	dep := cfg.Dependencies[backend.DependencyRuntime]
	dep.DetectCommands = [][]string{{}}
	cfg.Dependencies[backend.DependencyRuntime] = dep

	results := cfg.Validate()
	if !HasErrors(results) {
		t.Fatal("expected errors")
	}

	want := []string{
		`mirror "ftp://old.example.com" is not an http(s) url`,
		`mirror "https://cdn.example.com" listed more than once`,
		"dependency vcruntime: detect_commands[0] is empty",
		`logging.level "loud" is not a valid level`,
	}
	for _, w := range want {
		found := false
		for _, r := range results {
			if strings.Contains(r.Message, w) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing finding %q in %+v", w, results)
		}
	}
}

func TestValidateDefaultsHasNoErrors(t *testing.T) {
	if results := Default().Validate(); HasErrors(results) {
		t.Fatalf("default config has errors: %+v", results)
	}
}
