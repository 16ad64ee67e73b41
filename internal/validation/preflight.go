package validation

import (
	"fmt"
	"os"
	"path/filepath"

	pkginstall "github.com/dobrovols/ctxctl/pkg/install"
)

// TargetConfig captures filesystem prerequisites checked before installation.
// SkipLockCheck suppresses the stale-lock finding when the caller intends to
// wait for a concurrent operation instead of failing fast.
type TargetConfig struct {
	ConfigRoot    string
	BackupRoot    string
	StatePath     string
	SkipLockCheck bool
}

// Result describes the outcome of the preflight run.
type Result struct {
	Passed bool
	Issues []string
}

// FilesystemInspector models filesystem interrogation, allowing tests to stub.
type FilesystemInspector interface {
	Exists(path string) bool
	Writable(path string) bool
}

// ValidateTargets checks that the install destinations can be written before
// any phase that mutates them runs. A config root that does not exist yet
// passes when its nearest existing ancestor is writable.
func ValidateTargets(cfg TargetConfig, fsys FilesystemInspector) Result {
	if fsys == nil {
		fsys = DefaultInspector{}
	}

	issues := []string{}

	for _, target := range []struct {
		label string
		path  string
	}{
		{"config root", cfg.ConfigRoot},
		{"backup root", cfg.BackupRoot},
	} {
		if target.path == "" {
			continue
		}
		anchor := nearestExisting(target.path, fsys)
		if anchor == "" {
			issues = append(issues, fmt.Sprintf("%s has no existing ancestor: %s", target.label, target.path))
			continue
		}
		if !fsys.Writable(anchor) {
			issues = append(issues, fmt.Sprintf("%s not writable: %s", target.label, anchor))
		}
	}

	if !cfg.SkipLockCheck && cfg.ConfigRoot != "" && fsys.Exists(cfg.ConfigRoot) {
		lock := filepath.Join(cfg.ConfigRoot, pkginstall.LockFileName)
		if fsys.Exists(lock) {
			issues = append(issues, fmt.Sprintf("lock file present: %s", lock))
		}
	}

	if cfg.StatePath != "" {
		dir := filepath.Dir(cfg.StatePath)
		anchor := nearestExisting(dir, fsys)
		if anchor == "" || !fsys.Writable(anchor) {
			issues = append(issues, fmt.Sprintf("history directory not writable: %s", dir))
		}
	}

	return Result{Passed: len(issues) == 0, Issues: issues}
}

func nearestExisting(path string, fsys FilesystemInspector) string {
	current := filepath.Clean(path)
	for {
		if fsys.Exists(current) {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

// DefaultInspector interrogates the real filesystem.
type DefaultInspector struct{}

// Exists reports whether the path is present.
func (DefaultInspector) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Writable probes the path with a temporary file when it is a directory,
// falling back to a permission check otherwise.
func (DefaultInspector) Writable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if !info.IsDir() {
		return info.Mode().Perm()&0o200 != 0
	}
	probe, err := os.CreateTemp(path, ".ctxctl-preflight-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return true
}
