package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dobrovols/ctxctl/internal/config"
)

const sampleConfig = `metadata:
  name: team-config
  description: shared contexts for the review workflow
schema: schemas/settings.schema.json
contexts:
  git:
    - contexts/git.yaml
  review:
    - contexts/review.yaml
profiles:
  base:
    description: everyday defaults
    layers:
      - context:git
  dev:
    layers:
      - profile:base
      - overrides/dev.yaml
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctxctl.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDocument(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	doc, err := config.NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Metadata.Name != "team-config" {
		t.Fatalf("unexpected metadata name %q", doc.Metadata.Name)
	}
	if doc.SourcePath != path {
		t.Fatalf("unexpected source path %q", doc.SourcePath)
	}
	if doc.RootDir != filepath.Dir(path) {
		t.Fatalf("unexpected root dir %q", doc.RootDir)
	}
	if doc.SchemaPath != filepath.Join(doc.RootDir, "schemas", "settings.schema.json") {
		t.Fatalf("schema path not resolved relative to document: %q", doc.SchemaPath)
	}

	names := doc.Catalog.Names()
	if len(names) != 2 || names[0] != "git" || names[1] != "review" {
		t.Fatalf("unexpected context names %v", names)
	}

	def, ok := doc.Profiles.Profiles["dev"]
	if !ok {
		t.Fatalf("dev profile missing: %v", doc.Profiles.Names())
	}
	if len(def.Layers) != 2 || def.Layers[0] != "profile:base" {
		t.Fatalf("unexpected dev layers %v", def.Layers)
	}
	if doc.Profiles.Profiles["base"].Description != "everyday defaults" {
		t.Fatalf("base description lost: %q", doc.Profiles.Profiles["base"].Description)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "contexts:\n  git:\n    - a.yaml\nprofils:\n  dev:\n    layers: []\n")

	_, err := config.NewLoader().Load(path)
	if !errors.Is(err, config.ErrMalformedConfig) {
		t.Fatalf("expected ErrMalformedConfig for typo, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.NewLoader().Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLoadEmptyDocument(t *testing.T) {
	path := writeConfig(t, "")

	doc, err := config.NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	if len(doc.Catalog.Names()) != 0 {
		t.Fatalf("empty config produced contexts: %v", doc.Catalog.Names())
	}
	if len(doc.Profiles.Names()) != 0 {
		t.Fatalf("empty config produced profiles: %v", doc.Profiles.Names())
	}
	if doc.SchemaPath != "" {
		t.Fatalf("empty config produced schema path: %q", doc.SchemaPath)
	}
}

func TestLoadAbsoluteSchemaPath(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "settings.schema.json")
	path := writeConfig(t, "schema: "+abs+"\n")

	doc, err := config.NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.SchemaPath != abs {
		t.Fatalf("absolute schema path rewritten: %q", doc.SchemaPath)
	}
}
