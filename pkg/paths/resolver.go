// Package paths maps logical storage roles to platform-specific locations.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Role identifies a logical storage location used by the engine.
type Role string

const (
	// RoleConfigRoot holds the installed assistant configuration.
	RoleConfigRoot Role = "config"
	// RoleBackupRoot holds pre-installation snapshots.
	RoleBackupRoot Role = "backups"
	// RoleCacheRoot holds transient extraction and download artifacts.
	RoleCacheRoot Role = "cache"
	// RoleStateRoot holds the installation history log.
	RoleStateRoot Role = "state"
)

const appDirName = "ctxctl"

var (
	// ErrUnsupportedPlatform is returned on operating systems without a defined layout.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrUnknownRole is returned for roles outside the defined set.
	ErrUnknownRole = errors.New("unknown storage role")
)

// Resolver computes role locations. The zero value is not usable; construct
// with NewResolver. Environment and platform lookups are injectable so tests
// can exercise every platform from any host.
type Resolver struct {
	goos     string
	getenv   func(string) string
	userHome func() (string, error)
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithPlatform overrides the detected operating system.
func WithPlatform(goos string) Option {
	return func(r *Resolver) { r.goos = goos }
}

// WithEnv overrides environment variable lookup.
func WithEnv(getenv func(string) string) Option {
	return func(r *Resolver) { r.getenv = getenv }
}

// WithHome overrides home directory lookup.
func WithHome(userHome func() (string, error)) Option {
	return func(r *Resolver) { r.userHome = userHome }
}

// NewResolver constructs a resolver for the running host.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		goos:     runtime.GOOS,
		getenv:   os.Getenv,
		userHome: os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the absolute directory for the requested role. It performs
// no I/O; directory creation is the caller's responsibility via EnsureExists.
func (r *Resolver) Resolve(role Role) (string, error) {
	switch role {
	case RoleConfigRoot, RoleBackupRoot, RoleCacheRoot, RoleStateRoot:
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	switch r.goos {
	case "linux":
		return r.resolveLinux(role)
	case "darwin":
		return r.resolveDarwin(role)
	case "windows":
		return r.resolveWindows(role)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPlatform, r.goos)
	}
}

func (r *Resolver) resolveLinux(role Role) (string, error) {
	switch role {
	case RoleConfigRoot:
		if xdg := r.getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(filepath.Clean(xdg), appDirName), nil
		}
		return r.homeJoin(".config", appDirName)
	case RoleCacheRoot:
		if xdg := r.getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(filepath.Clean(xdg), appDirName), nil
		}
		return r.homeJoin(".cache", appDirName)
	default:
		// Backups and state both live under the XDG state directory.
		if xdg := r.getenv("XDG_STATE_HOME"); xdg != "" {
			return filepath.Join(filepath.Clean(xdg), appDirName, string(role)), nil
		}
		return r.homeJoin(".local", "state", appDirName, string(role))
	}
}

func (r *Resolver) resolveDarwin(role Role) (string, error) {
	switch role {
	case RoleConfigRoot:
		return r.homeJoin("Library", "Application Support", appDirName)
	case RoleCacheRoot:
		return r.homeJoin("Library", "Caches", appDirName)
	default:
		return r.homeJoin("Library", "Application Support", appDirName, string(role))
	}
}

func (r *Resolver) resolveWindows(role Role) (string, error) {
	switch role {
	case RoleConfigRoot:
		if appData := r.getenv("APPDATA"); appData != "" {
			return filepath.Join(filepath.Clean(appData), appDirName), nil
		}
		return r.homeJoin("AppData", "Roaming", appDirName)
	case RoleCacheRoot:
		if local := r.getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(filepath.Clean(local), appDirName, "cache"), nil
		}
		return r.homeJoin("AppData", "Local", appDirName, "cache")
	default:
		if local := r.getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(filepath.Clean(local), appDirName, string(role)), nil
		}
		return r.homeJoin("AppData", "Local", appDirName, string(role))
	}
}

func (r *Resolver) homeJoin(parts ...string) (string, error) {
	home, err := r.userHome()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if home == "" {
		return "", errors.New("unable to determine user home directory")
	}
	return filepath.Join(append([]string{filepath.Clean(home)}, parts...)...), nil
}

// EnsureExists creates the directory with owner-only permissions if absent.
func EnsureExists(path string) error {
	if path == "" {
		return errors.New("path is required")
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("create directory %q: %w", path, err)
	}
	return nil
}
