package state

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dobrovols/ctxctl/pkg/paths"
	pkgstate "github.com/dobrovols/ctxctl/pkg/state"
)

const defaultFileName = "history.jsonl"

var (
	errConflictingOverrides = errors.New("history file override is invalid: specify either --history-file or --history-file-name")
	errRelativeHistoryFile  = errors.New("history file override is invalid: must provide an absolute path")
	errInvalidFileName      = errors.New("history file override is invalid: filename must not contain path separators")
)

// Resolver resolves history file paths according to overrides and platform defaults.
type Resolver struct {
	paths *paths.Resolver
}

// NewResolver constructs a history path resolver for the running host.
func NewResolver() *Resolver {
	return &Resolver{paths: paths.NewResolver()}
}

// NewResolverWithPaths constructs a resolver over an injected platform resolver.
func NewResolverWithPaths(p *paths.Resolver) *Resolver {
	return &Resolver{paths: p}
}

func (r *Resolver) Resolve(overrides pkgstate.Overrides) (string, error) {
	if overrides.StateFilePath != "" && overrides.StateFileName != "" {
		return "", errConflictingOverrides
	}

	if overrides.StateFilePath != "" {
		if !filepath.IsAbs(overrides.StateFilePath) {
			return "", errRelativeHistoryFile
		}
		return filepath.Clean(overrides.StateFilePath), nil
	}

	dir := overrides.StateDirectory
	if dir == "" {
		var err error
		dir, err = r.paths.Resolve(paths.RoleStateRoot)
		if err != nil {
			return "", fmt.Errorf("determine state directory: %w", err)
		}
	}

	dir = filepath.Clean(dir)
	if !filepath.IsAbs(dir) {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("resolve state directory: %w", err)
		}
		dir = abs
	}

	fileName := overrides.StateFileName
	if fileName == "" {
		fileName = defaultFileName
	}
	if invalidFileName(fileName) {
		return "", errInvalidFileName
	}

	return filepath.Join(dir, fileName), nil
}

func invalidFileName(name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return true
	}
	// Check for control characters
	for _, r := range name {
		if r < 32 || r == 127 {
			return true
		}
	}
	// Reserved Windows filenames (case-insensitive)
	reserved := []string{
		"CON", "PRN", "AUX", "NUL",
		"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
		"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
	}
	upper := strings.ToUpper(name)
	for _, res := range reserved {
		if upper == res || strings.HasPrefix(upper, res+".") {
			return true
		}
	}
	return false
}

// ErrConflictingOverrides exposes the override validation error.
func ErrConflictingOverrides() error { return errConflictingOverrides }

// ErrRelativeHistoryFile exposes the relative path validation error.
func ErrRelativeHistoryFile() error { return errRelativeHistoryFile }

// ErrInvalidFileName exposes invalid filename validation error.
func ErrInvalidFileName() error { return errInvalidFileName }
