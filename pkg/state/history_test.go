package state_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dobrovols/ctxctl/pkg/state"
)

type fixedResolver struct {
	path string
	err  error
}

func (f fixedResolver) Resolve(state.Overrides) (string, error) {
	return f.path, f.err
}

func TestAppendAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	manager := state.NewManager(fixedResolver{path: path})

	for i, profile := range []string{"dev", "team"} {
		written, err := manager.Append(state.Record{
			Action:  "install",
			Status:  "success",
			Profile: profile,
		}, state.Overrides{})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if written != path {
			t.Fatalf("expected path %s, got %s", path, written)
		}
	}

	records, err := manager.List(state.Overrides{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected two records, got %d", len(records))
	}
	if records[0].Profile != "dev" || records[1].Profile != "team" {
		t.Fatalf("records out of append order: %#v", records)
	}
	for _, record := range records {
		if record.Timestamp == "" {
			t.Fatalf("expected auto-filled timestamp: %#v", record)
		}
	}
}

func TestLastReturnsNewestRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	manager := state.NewManager(fixedResolver{path: path})

	if _, err := manager.Append(state.Record{Action: "install", Status: "success", Profile: "one"}, state.Overrides{}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := manager.Append(state.Record{Action: "restore", Status: "success"}, state.Overrides{}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	last, err := manager.Last(state.Overrides{})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if last.Action != "restore" {
		t.Fatalf("expected restore to be last, got %#v", last)
	}
}

func TestLastWithoutHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	manager := state.NewManager(fixedResolver{path: path})

	if _, err := manager.Last(state.Overrides{}); !errors.Is(err, state.ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
}

func TestAppendCreatesParentDirectoryWithTightPermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	path := filepath.Join(dir, "history.jsonl")
	manager := state.NewManager(fixedResolver{path: path})

	if _, err := manager.Append(state.Record{Action: "install", Status: "success"}, state.Overrides{}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat history: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 history file, got %v", info.Mode().Perm())
	}
}

func TestAppendPreservesExistingRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	manager := state.NewManager(fixedResolver{path: path})

	if _, err := manager.Append(state.Record{Action: "install", Status: "success", Profile: "keep"}, state.Overrides{}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := manager.Append(state.Record{Action: "install", Status: "failed", Profile: "next"}, state.Overrides{}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two JSONL lines, got %d:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[0], `"keep"`) {
		t.Fatalf("first line lost: %s", lines[0])
	}
}

func TestResolverErrorPropagates(t *testing.T) {
	manager := state.NewManager(fixedResolver{err: errors.New("boom")})
	if _, err := manager.Append(state.Record{}, state.Overrides{}); err == nil {
		t.Fatal("expected resolver error to propagate")
	}
}
