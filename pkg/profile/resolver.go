// Package profile expands profile definitions into ordered configuration
// layers and produces the deterministic merged result.
package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/dobrovols/ctxctl/pkg/catalog"
	"github.com/dobrovols/ctxctl/pkg/fragment"
	"github.com/dobrovols/ctxctl/pkg/merge"
)

var (
	// ErrUnknownProfile is returned when the requested profile is not declared.
	ErrUnknownProfile = errors.New("profile not defined in configuration")
	// ErrUnknownLayer is returned when a direct layer reference cannot be loaded.
	ErrUnknownLayer = errors.New("layer could not be resolved")
	// ErrCyclicProfile is returned when a profile transitively references itself.
	ErrCyclicProfile = errors.New("cyclic profile reference")
	// ErrNoLayers is returned when expansion produces no loadable layers.
	ErrNoLayers = errors.New("profile resolves to no layers")
)

// Layer is one expanded contributor to a profile, in merge order.
type Layer struct {
	Ref   string
	Kind  RefKind
	Files []string
}

// Resolution is the pure output of resolving one profile. The resolver holds
// no state between calls; identical inputs yield byte-identical merges.
type Resolution struct {
	Profile string
	Layers  []Layer
	Merged  *merge.Merged
	// ContextFiles lists every existing context file in expansion order,
	// deduplicated, for distribution into the target configuration root.
	ContextFiles []string
	Warnings     []catalog.Warning
}

// FragmentLoader loads one fragment file. Injectable for encrypted layers and tests.
type FragmentLoader func(path, layer string) (*fragment.Fragment, error)

// Resolver expands profiles against a catalog and a fragment loader.
type Resolver struct {
	set     Set
	catalog *catalog.Catalog
	rootDir string
	loader  FragmentLoader
}

// NewResolver constructs a resolver. rootDir anchors relative file references;
// loader defaults to fragment.Load without a passphrase.
func NewResolver(set Set, cat *catalog.Catalog, rootDir string, loader FragmentLoader) *Resolver {
	if loader == nil {
		loader = func(path, layer string) (*fragment.Fragment, error) {
			return fragment.Load(path, layer, fragment.LoadOptions{})
		}
	}
	return &Resolver{set: set, catalog: cat, rootDir: filepath.Clean(rootDir), loader: loader}
}

// Resolve expands the named profile, loads its fragments in declared order,
// and merges them.
func (r *Resolver) Resolve(name string) (*Resolution, error) {
	def, ok := r.set.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}

	res := &Resolution{Profile: name}
	visited := map[string]bool{}
	if err := r.expand(def, visited, res); err != nil {
		return nil, err
	}

	var fragments []*fragment.Fragment
	seen := map[string]bool{}
	for _, layer := range res.Layers {
		for _, file := range layer.Files {
			frag, err := r.loader(file, layerName(r.rootDir, file))
			if err != nil {
				if layer.Kind == RefFile && errors.Is(err, fs.ErrNotExist) {
					return nil, fmt.Errorf("%w: %q: %v", ErrUnknownLayer, layer.Ref, err)
				}
				return nil, err
			}
			fragments = append(fragments, frag)
			if layer.Kind == RefContext && !seen[file] {
				seen[file] = true
				res.ContextFiles = append(res.ContextFiles, file)
			}
		}
	}
	if len(fragments) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoLayers, name)
	}

	merged, err := merge.Merge(fragments)
	if err != nil {
		return nil, err
	}
	res.Merged = merged
	return res, nil
}

// expand walks the profile's layer list in declared order, inlining profile
// composition references. visited tracks the active expansion path so a
// profile that transitively references itself fails with a precise error.
func (r *Resolver) expand(def Definition, visited map[string]bool, res *Resolution) error {
	if visited[def.Name] {
		return fmt.Errorf("%w: %q", ErrCyclicProfile, def.Name)
	}
	visited[def.Name] = true
	defer delete(visited, def.Name)

	for _, ref := range def.Layers {
		kind, target := ClassifyRef(ref)
		switch kind {
		case RefProfile:
			child, ok := r.set.Profiles[target]
			if !ok {
				return fmt.Errorf("%w: %s references unknown profile %q", ErrUnknownLayer, def.Name, target)
			}
			if err := r.expand(child, visited, res); err != nil {
				return err
			}
		case RefContext:
			if r.catalog == nil {
				return fmt.Errorf("%w: %s references context %q but no catalog is loaded", ErrUnknownLayer, def.Name, target)
			}
			resolution, err := r.catalog.Resolve(target)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUnknownLayer, err)
			}
			res.Warnings = append(res.Warnings, resolution.Warnings...)
			res.Layers = append(res.Layers, Layer{Ref: ref, Kind: RefContext, Files: resolution.Files})
		default:
			path := target
			if !filepath.IsAbs(path) {
				path = filepath.Join(r.rootDir, filepath.Clean(path))
			}
			res.Layers = append(res.Layers, Layer{Ref: ref, Kind: RefFile, Files: []string{path}})
		}
	}
	return nil
}

// layerName derives the audit-trail name for a fragment file: its path
// relative to the document root when possible, else the absolute path.
func layerName(rootDir, file string) string {
	if rel, err := filepath.Rel(rootDir, file); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(file)
}
