package cli

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeArtifact(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "game-1.21.0.zip")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{"game.exe": "binary", "data/pack.bin": "pack"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestVersionsInstallListStatusDelete(t *testing.T) {
	root := t.TempDir()
	artifact := writeArtifact(t, t.TempDir())

	stdout, stderr, err := runCLI(t, "--root", root, "versions", "install", "Vanilla",
		"--version", "1.21.0", "--artifact", artifact)
	if err != nil {
		t.Fatalf("install returned error: %v (stderr %q)", err, stderr)
	}
	if !strings.Contains(stdout, "Installed Vanilla") {
		t.Fatalf("expected install summary, got %q", stdout)
	}
	if !strings.Contains(stderr, "Vanilla: extracting") {
		t.Fatalf("expected stage lines on stderr, got %q", stderr)
	}
	if _, err := os.Stat(filepath.Join(root, "versions", "Vanilla", "game.exe")); err != nil {
		t.Fatalf("expected extracted file: %v", err)
	}

	stdout, _, err = runCLI(t, "--root", root, "--json", "versions", "list")
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	var list struct {
		Versions []versionJSONRow `json:"versions"`
	}
	if err := json.Unmarshal([]byte(stdout), &list); err != nil {
		t.Fatalf("decode list json: %v (%q)", err, stdout)
	}
	if len(list.Versions) != 1 || list.Versions[0].Name != "Vanilla" || list.Versions[0].Version != "1.21.0" {
		t.Fatalf("unexpected versions: %+v", list.Versions)
	}

	stdout, _, err = runCLI(t, "--root", root, "versions", "status")
	if err != nil {
		t.Fatalf("status returned error: %v", err)
	}
	if !strings.Contains(stdout, "1.21.0") || !strings.Contains(stdout, "Vanilla") {
		t.Fatalf("expected status row, got %q", stdout)
	}

	if _, _, err := runCLI(t, "--root", root, "versions", "delete", "Vanilla"); err != nil {
		t.Fatalf("delete returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "versions", "Vanilla")); !os.IsNotExist(err) {
		t.Fatalf("expected folder removed, stat err %v", err)
	}
}

func TestVersionsInstallDuplicateName(t *testing.T) {
	root := t.TempDir()
	artifact := writeArtifact(t, t.TempDir())

	if _, _, err := runCLI(t, "--root", root, "versions", "install", "Vanilla", "--version", "1.21.0", "--artifact", artifact); err != nil {
		t.Fatalf("first install: %v", err)
	}
	_, _, err := runCLI(t, "--root", root, "versions", "install", "Vanilla", "--version", "1.21.0", "--artifact", artifact)
	if err == nil || !strings.Contains(err.Error(), "ERR_NAME_EXISTS") {
		t.Fatalf("expected ERR_NAME_EXISTS, got %v", err)
	}
}

func TestVersionsInstallWithoutArtifact(t *testing.T) {
	root := t.TempDir()
	_, _, err := runCLI(t, "--root", root, "versions", "install", "Vanilla", "--version", "1.21.0")
	if err == nil || !strings.Contains(err.Error(), "ERR_MSIXVC_NOT_SPECIFIED") {
		t.Fatalf("expected ERR_MSIXVC_NOT_SPECIFIED, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "versions", "Vanilla")); !os.IsNotExist(err) {
		t.Fatalf("expected no folder, stat err %v", err)
	}
}

func TestVersionsInstallInheritRequiresIsolate(t *testing.T) {
	root := t.TempDir()
	_, _, err := runCLI(t, "--root", root, "versions", "install", "Vanilla", "--version", "1.21.0", "--inherit", "base")
	if err == nil || !strings.Contains(err.Error(), "--isolate") {
		t.Fatalf("expected --isolate error, got %v", err)
	}
}

func TestDepsConfirmResolvedByPath(t *testing.T) {
	root := t.TempDir()
	marker := filepath.Join(t.TempDir(), "vcruntime.dll")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := "dependencies:\n  vcruntime:\n    detect_paths:\n      - " + marker + "\n"
	if err := os.WriteFile(filepath.Join(root, "gamedeck.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := runCLI(t, "--root", root, "--json", "deps", "confirm", "vcruntime")
	if err != nil {
		t.Fatalf("confirm returned error: %v", err)
	}
	if !strings.Contains(stdout, `"phase": "resolved"`) {
		t.Fatalf("expected resolved phase, got %q", stdout)
	}
}

func TestDepsCheckReportsSettledAutoInstall(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	root := t.TempDir()
	missing := filepath.Join(t.TempDir(), "absent.dll")
	cfg := "dependencies:\n" +
		"  gameinput:\n    detect_paths:\n      - " + missing + "\n    installer_url: " + srv.URL + "/gameinput.exe\n" +
		"  vcruntime:\n    detect_paths:\n      - " + missing + "\n    installer_url: " + srv.URL + "/vcruntime.exe\n    auto_install: true\n"
	if err := os.WriteFile(filepath.Join(root, "gamedeck.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := runCLI(t, "--root", root, "--json", "deps", "check")
	if err != nil {
		t.Fatalf("check returned error: %v", err)
	}
	var out struct {
		Dependencies []struct {
			Kind      string `json:"kind"`
			Phase     string `json:"phase"`
			LastError string `json:"last_error"`
			Automatic bool   `json:"automatic"`
		} `json:"dependencies"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("decode output %q: %v", stdout, err)
	}
	found := map[string]bool{}
	for _, dep := range out.Dependencies {
		found[dep.Kind] = true
		switch dep.Kind {
		case "vcruntime":
			if dep.Phase != "missing" || dep.LastError == "" {
				t.Errorf("vcruntime: expected settled missing with error, got phase %q error %q", dep.Phase, dep.LastError)
			}
		case "gameinput":
			if dep.Phase != "missing" || dep.Automatic {
				t.Errorf("gameinput: expected missing without auto install, got phase %q automatic %v", dep.Phase, dep.Automatic)
			}
		}
	}
	if !found["vcruntime"] || !found["gameinput"] {
		t.Fatalf("missing kinds in output: %q", stdout)
	}
}

func TestDepsInstallUnknownKind(t *testing.T) {
	_, _, err := runCLI(t, "--root", t.TempDir(), "deps", "install", "directx")
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestMirrorsTestRequiresURLs(t *testing.T) {
	_, _, err := runCLI(t, "--root", t.TempDir(), "mirrors", "test")
	if err == nil || !strings.Contains(err.Error(), "no mirrors configured") {
		t.Fatalf("expected missing mirrors error, got %v", err)
	}
}

func TestConfigShow(t *testing.T) {
	root := t.TempDir()
	stdout, _, err := runCLI(t, "--root", root, "config", "show")
	if err != nil {
		t.Fatalf("config show returned error: %v", err)
	}
	if !strings.Contains(stdout, "timeout_ms: 3000") {
		t.Fatalf("expected default mirrors timeout, got %q", stdout)
	}
	if !strings.Contains(stdout, filepath.Join(root, "gamedeck.yaml")) {
		t.Fatalf("expected config path header, got %q", stdout)
	}
}

func TestArtifactURL(t *testing.T) {
	got, err := artifactURL("https://cdn.example.com/builds/", "1.21.0", "preview")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://cdn.example.com/builds/preview/1.21.0.msixvc" {
		t.Fatalf("got %s", got)
	}
}

func TestParseInherit(t *testing.T) {
	if got := parseInherit(""); got.Kind != "" {
		t.Fatalf("expected no inherit, got %+v", got)
	}
	if got := parseInherit("BASE"); got.Kind != "base" {
		t.Fatalf("expected base, got %+v", got)
	}
	got := parseInherit("Vanilla")
	if got.Kind != "version" || got.Version != "Vanilla" {
		t.Fatalf("expected version inherit, got %+v", got)
	}
}
