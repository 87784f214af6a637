package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"gamedeck/internal/backend"
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

// Validate checks the config and returns structured results.
func (c Config) Validate() []ValidationResult {
	var results []ValidationResult
	results = append(results, c.validateMirrors()...)
	results = append(results, c.validateDependencies()...)
	results = append(results, c.validateLogging()...)
	return results
}

// HasErrors reports whether results contain an error-level finding.
func HasErrors(results []ValidationResult) bool {
	for _, r := range results {
		if r.Level == "error" {
			return true
		}
	}
	return false
}

func (c Config) validateMirrors() []ValidationResult {
	var results []ValidationResult
	if len(c.Mirrors.URLs) == 0 {
		results = append(results, ValidationResult{
			Level:   "warning",
			Message: "no mirrors configured; downloads need an explicit --url",
		})
	}
	seen := map[string]bool{}
	for _, raw := range c.Mirrors.URLs {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			results = append(results, ValidationResult{
				Level:   "error",
				Message: fmt.Sprintf("mirror %q is not an http(s) url", raw),
			})
			continue
		}
		if seen[raw] {
			results = append(results, ValidationResult{
				Level:   "warning",
				Message: fmt.Sprintf("mirror %q listed more than once", raw),
			})
		}
		seen[raw] = true
	}
	return results
}

func (c Config) validateDependencies() []ValidationResult {
	var results []ValidationResult

	kinds := make([]string, 0, len(c.Dependencies))
	for kind := range c.Dependencies {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)

	autos := 0
	for _, name := range kinds {
		kind := backend.DependencyKind(name)
		dep := c.Dependencies[kind]
		if _, err := backend.ParseDependencyKind(name); err != nil {
			results = append(results, ValidationResult{
				Level:   "error",
				Message: fmt.Sprintf("dependencies: unknown kind %q", name),
			})
			continue
		}
		if len(dep.DetectCommands) == 0 && len(dep.DetectPaths) == 0 {
			results = append(results, ValidationResult{
				Level:   "warning",
				Message: fmt.Sprintf("dependency %s has no detection rule and will always be reported missing", kind),
			})
		}
		for i, cmd := range dep.DetectCommands {
			if len(cmd) == 0 || strings.TrimSpace(cmd[0]) == "" {
				results = append(results, ValidationResult{
					Level:   "error",
					Message: fmt.Sprintf("dependency %s: detect_commands[%d] is empty", kind, i),
				})
			}
		}
		if dep.InstallerURL == "" && dep.StoreURL == "" {
			results = append(results, ValidationResult{
				Level:   "warning",
				Message: fmt.Sprintf("dependency %s has no installer_url or store_url", kind),
			})
		}
		if dep.AutoInstall {
			autos++
		}
	}
	if autos > 1 {
		results = append(results, ValidationResult{
			Level:   "warning",
			Message: "auto_install is set on several dependencies; only one installer runs automatically at a time",
		})
	}
	return results
}

func (c Config) validateLogging() []ValidationResult {
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return []ValidationResult{{
			Level:   "error",
			Message: fmt.Sprintf("logging.level %q is not a valid level", c.Logging.Level),
		}}
	}
	return nil
}
