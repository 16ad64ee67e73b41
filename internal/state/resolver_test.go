package state_test

import (
	"errors"
	"path/filepath"
	"testing"

	internalstate "github.com/dobrovols/ctxctl/internal/state"
	"github.com/dobrovols/ctxctl/pkg/paths"
	pkgstate "github.com/dobrovols/ctxctl/pkg/state"
)

func stubbedResolver(stateHome string) *internalstate.Resolver {
	p := paths.NewResolver(
		paths.WithPlatform("linux"),
		paths.WithEnv(func(key string) string {
			if key == "XDG_STATE_HOME" {
				return stateHome
			}
			return ""
		}),
		paths.WithHome(func() (string, error) { return "/home/dev", nil }),
	)
	return internalstate.NewResolverWithPaths(p)
}

func TestResolveDefaultLocation(t *testing.T) {
	resolver := stubbedResolver("/custom/state")

	path, err := resolver.Resolve(pkgstate.Overrides{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join("/custom/state", "ctxctl", "state", "history.jsonl")
	if path != want {
		t.Fatalf("got %q, want %q", path, want)
	}
}

func TestResolveAbsolutePathOverride(t *testing.T) {
	resolver := stubbedResolver("")

	path, err := resolver.Resolve(pkgstate.Overrides{StateFilePath: "/var/lib/ctxctl//history.jsonl"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != "/var/lib/ctxctl/history.jsonl" {
		t.Fatalf("expected cleaned absolute override, got %q", path)
	}
}

func TestResolveRelativePathOverride(t *testing.T) {
	resolver := stubbedResolver("")

	_, err := resolver.Resolve(pkgstate.Overrides{StateFilePath: "relative/history.jsonl"})
	if !errors.Is(err, internalstate.ErrRelativeHistoryFile()) {
		t.Fatalf("expected relative path rejection, got %v", err)
	}
}

func TestResolveConflictingOverrides(t *testing.T) {
	resolver := stubbedResolver("")

	_, err := resolver.Resolve(pkgstate.Overrides{
		StateFilePath: "/var/lib/ctxctl/history.jsonl",
		StateFileName: "other.jsonl",
	})
	if !errors.Is(err, internalstate.ErrConflictingOverrides()) {
		t.Fatalf("expected conflicting override rejection, got %v", err)
	}
}

func TestResolveCustomFileName(t *testing.T) {
	resolver := stubbedResolver("/custom/state")

	path, err := resolver.Resolve(pkgstate.Overrides{StateFileName: "audit.jsonl"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if filepath.Base(path) != "audit.jsonl" {
		t.Fatalf("file name override ignored: %q", path)
	}
}

func TestResolveCustomDirectory(t *testing.T) {
	resolver := stubbedResolver("")
	dir := t.TempDir()

	path, err := resolver.Resolve(pkgstate.Overrides{StateDirectory: dir})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != filepath.Join(dir, "history.jsonl") {
		t.Fatalf("directory override ignored: %q", path)
	}
}

func TestResolveInvalidFileNames(t *testing.T) {
	resolver := stubbedResolver("/custom/state")

	for _, name := range []string{"nested/history.jsonl", "back\\slash", "CON", "nul.jsonl", "bad\x00name"} {
		_, err := resolver.Resolve(pkgstate.Overrides{StateFileName: name})
		if !errors.Is(err, internalstate.ErrInvalidFileName()) {
			t.Fatalf("%q: expected invalid filename rejection, got %v", name, err)
		}
	}
}
