// Package catalog resolves named contexts to the ordered files that compose them.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMalformedCatalog is returned when the catalog file cannot be parsed.
	ErrMalformedCatalog = errors.New("malformed context catalog")
	// ErrUnknownContext is returned when a requested context name is not declared.
	// A context name is never treated as a literal filename; typos fail loudly.
	ErrUnknownContext = errors.New("context not defined in catalog")
)

// Catalog maps context names to ordered file references relative to Root.
type Catalog struct {
	Root       string
	Contexts   map[string][]string
	SourcePath string
}

// WarningKind classifies non-fatal resolution findings.
type WarningKind string

// WarningMissingFile marks a declared file reference that does not exist.
const WarningMissingFile WarningKind = "missing-file"

// Warning annotates a resolution without failing it.
type Warning struct {
	Kind WarningKind
	Path string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Path)
}

// Resolution is the outcome of resolving one context name.
type Resolution struct {
	Name string
	// Files lists the absolute paths of declared references that exist, in
	// declaration order.
	Files []string
	// Warnings carries one entry per missing declared reference. Callers
	// decide whether missing optional files are acceptable.
	Warnings []Warning
}

// New builds a catalog from an already-decoded context mapping.
func New(root string, contexts map[string][]string) *Catalog {
	if contexts == nil {
		contexts = map[string][]string{}
	}
	return &Catalog{Root: filepath.Clean(root), Contexts: contexts}
}

// Load parses a standalone catalog file. File references resolve relative to
// the catalog file's directory.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", path, err)
	}

	var raw struct {
		Contexts map[string][]string `yaml:"contexts"`
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedCatalog, path, err)
	}

	c := New(filepath.Dir(path), raw.Contexts)
	c.SourcePath = path
	return c, nil
}

// Resolve looks up name and returns the ordered file list. Missing declared
// files are reported as warnings rather than failing the whole resolution.
func (c *Catalog) Resolve(name string) (*Resolution, error) {
	refs, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContext, name)
	}

	res := &Resolution{Name: name}
	for _, ref := range refs {
		abs := ref
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(c.Root, filepath.Clean(ref))
		}
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			res.Warnings = append(res.Warnings, Warning{Kind: WarningMissingFile, Path: abs})
			continue
		}
		res.Files = append(res.Files, abs)
	}
	return res, nil
}

// Names returns the declared context names in lexical order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
