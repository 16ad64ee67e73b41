// Package state persists the append-only installation history that backs the
// status and restore commands.
package state

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Record stores the outcome of one install or restore operation.
type Record struct {
	Action           string   `json:"action"`
	Status           string   `json:"status"`
	Profile          string   `json:"profile,omitempty"`
	SnapshotID       string   `json:"snapshotId,omitempty"`
	RestoredSnapshot string   `json:"restoredSnapshot,omitempty"`
	FilesWritten     []string `json:"filesWritten,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	Timestamp        string   `json:"timestamp"`
}

// Overrides defines user-supplied preferences for the history file location.
type Overrides struct {
	StateDirectory string
	StateFileName  string
	StateFilePath  string
}

// PathResolver resolves the effective filesystem path for the history file.
type PathResolver interface {
	Resolve(Overrides) (string, error)
}

// Manager coordinates persistence of the installation history log.
type Manager struct {
	resolver PathResolver
	dirPerm  os.FileMode
	filePerm os.FileMode
}

var (
	errPathResolverMissing = errors.New("history path resolver not configured")
	errEmptyHistoryPath    = errors.New("resolved history file path empty")
	errWriteFailed         = errors.New("history file could not be written")
	// ErrNoHistory is returned when no installation has been recorded yet.
	ErrNoHistory = errors.New("no installation history recorded")
)

// NewManager constructs a Manager with the provided resolver.
func NewManager(resolver PathResolver) *Manager {
	return &Manager{
		resolver: resolver,
		dirPerm:  0o700,
		filePerm: 0o600,
	}
}

// ErrWriteFailed exposes the write failure sentinel.
func ErrWriteFailed() error { return errWriteFailed }

func (m *Manager) resolvePath(overrides Overrides) (string, error) {
	if m == nil || m.resolver == nil {
		return "", errPathResolverMissing
	}
	path, err := m.resolver.Resolve(overrides)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(path) == "" {
		return "", errEmptyHistoryPath
	}
	return path, nil
}

// Append adds the record to the end of the history log. The rewrite happens
// through a temp file and rename so a crash never truncates prior history.
func (m *Manager) Append(record Record, overrides Overrides) (string, error) {
	path, err := m.resolvePath(overrides)
	if err != nil {
		return "", err
	}

	if record.Timestamp == "" {
		record.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	existing, err := m.readAll(path)
	if err != nil {
		return "", err
	}
	existing = append(existing, record)

	dir := filepath.Dir(path)
	if _, statErr := os.Stat(dir); statErr != nil {
		if !errors.Is(statErr, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %w", errWriteFailed, statErr)
		}
		if err := os.MkdirAll(dir, m.dirPerm); err != nil {
			return "", fmt.Errorf("%w: %w", errWriteFailed, err)
		}
	}

	tmp, err := os.CreateTemp(dir, "history-*.jsonl")
	if err != nil {
		return "", fmt.Errorf("%w: %w", errWriteFailed, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(m.filePerm); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: %w", errWriteFailed, err)
	}

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	for _, rec := range existing {
		if err := enc.Encode(rec); err != nil {
			tmp.Close()
			return "", fmt.Errorf("%w: %w", errWriteFailed, err)
		}
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %w", errWriteFailed, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("%w: %w", errWriteFailed, err)
	}
	if err := os.Chmod(path, m.filePerm); err != nil {
		return "", fmt.Errorf("%w: %w", errWriteFailed, err)
	}

	return path, nil
}

// Last returns the most recent record.
func (m *Manager) Last(overrides Overrides) (*Record, error) {
	records, err := m.List(overrides)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoHistory
	}
	last := records[len(records)-1]
	return &last, nil
}

// List returns every recorded operation in append order.
func (m *Manager) List(overrides Overrides) ([]Record, error) {
	path, err := m.resolvePath(overrides)
	if err != nil {
		return nil, err
	}
	return m.readAll(path)
}

func (m *Manager) readAll(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history %q: %w", path, err)
	}

	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parse history %q: %w", path, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan history %q: %w", path, err)
	}
	return records, nil
}
