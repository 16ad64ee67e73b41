// Package config loads the declarative ctxctl configuration document that
// declares contexts and profiles.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dobrovols/ctxctl/pkg/catalog"
	"github.com/dobrovols/ctxctl/pkg/profile"
)

// ErrMalformedConfig is returned when the configuration file cannot be parsed.
var ErrMalformedConfig = errors.New("malformed ctxctl configuration")

// Metadata captures optional descriptive fields for a configuration document.
type Metadata struct {
	Name        string
	Description string
}

// Document is the parsed, validated configuration file.
type Document struct {
	Metadata   Metadata
	SchemaPath string
	Catalog    *catalog.Catalog
	Profiles   profile.Set
	SourcePath string
	RootDir    string
}

type rawDocument struct {
	Metadata struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"metadata"`
	Schema   string                `yaml:"schema"`
	Contexts map[string][]string   `yaml:"contexts"`
	Profiles map[string]rawProfile `yaml:"profiles"`
}

type rawProfile struct {
	Description string   `yaml:"description"`
	Layers      []string `yaml:"layers"`
}

// Loader parses configuration documents.
type Loader struct{}

// NewLoader constructs a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses the YAML file at the supplied path. Unknown fields are
// rejected so typos surface instead of being silently dropped.
func (l *Loader) Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	var raw rawDocument
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedConfig, path, err)
	}

	rootDir := filepath.Dir(path)

	defs := make(map[string]profile.Definition, len(raw.Profiles))
	for name, rp := range raw.Profiles {
		defs[name] = profile.Definition{
			Name:        name,
			Description: rp.Description,
			Layers:      append([]string(nil), rp.Layers...),
		}
	}

	doc := &Document{
		Metadata: Metadata{
			Name:        raw.Metadata.Name,
			Description: raw.Metadata.Description,
		},
		Catalog:    catalog.New(rootDir, raw.Contexts),
		Profiles:   profile.NewSet(defs),
		SourcePath: path,
		RootDir:    rootDir,
	}
	doc.Catalog.SourcePath = path

	if raw.Schema != "" {
		schemaPath := filepath.Clean(raw.Schema)
		if !filepath.IsAbs(schemaPath) {
			schemaPath = filepath.Join(rootDir, schemaPath)
		}
		doc.SchemaPath = schemaPath
	}

	return doc, nil
}
