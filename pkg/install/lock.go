package install

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// LockFileName is the advisory lock held for the duration of an installation.
const LockFileName = ".ctxctl.lock"

const lockPollInterval = 100 * time.Millisecond

var (
	// ErrConcurrentInstall is returned when another installation holds the lock.
	ErrConcurrentInstall = errors.New("another installation is in progress")
	// ErrLockTimeout is returned when the bounded wait for the lock expires.
	ErrLockTimeout = errors.New("timed out waiting for installation lock")
)

type lock struct {
	path string
}

// acquireLock takes the single-writer advisory lock under the configuration
// root. A zero timeout fails fast with ErrConcurrentInstall; otherwise the
// acquisition polls until the deadline and fails with ErrLockTimeout.
func acquireLock(configRoot string, timeout time.Duration) (*lock, error) {
	if err := os.MkdirAll(configRoot, 0o700); err != nil {
		return nil, fmt.Errorf("create configuration root: %w", err)
	}
	path := filepath.Join(configRoot, LockFileName)
	deadline := time.Now().Add(timeout)

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			if closeErr := f.Close(); closeErr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("write lock file: %w", closeErr)
			}
			return &lock{path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if timeout <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrConcurrentInstall, path)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w (%s)", ErrLockTimeout, timeout)
		}
		time.Sleep(lockPollInterval)
	}
}

func (l *lock) release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
