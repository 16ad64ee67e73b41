// Package merge combines ordered configuration fragments into a single tree
// with a per-key audit trail. Merging is a pure function of its inputs and
// never touches the filesystem.
package merge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dobrovols/ctxctl/pkg/fragment"
)

// ErrNoFragments is returned when Merge receives an empty fragment list.
var ErrNoFragments = errors.New("no fragments to merge")

// Override records one key whose earlier value was replaced by a later layer.
type Override struct {
	Path     string   `json:"path"`
	Winner   string   `json:"winner"`
	Shadowed []string `json:"shadowed"`
}

// Merged is the deterministic result of merging a profile's layers.
type Merged struct {
	Root fragment.Value
	// Provenance maps each leaf path to the layer that contributed its value.
	Provenance map[string]string
	// Overrides lists every replacement in merge order.
	Overrides []Override
	// Layers lists the contributing layer names in merge order.
	Layers []string
}

// Merge folds the ordered fragment list left to right. Scalars follow
// last-write-wins by layer order; lists append with exact-duplicate removal
// preserving first-seen order; maps merge recursively.
func Merge(fragments []*fragment.Fragment) (*Merged, error) {
	if len(fragments) == 0 {
		return nil, ErrNoFragments
	}

	m := &Merged{
		Root:       fragment.Value{Kind: fragment.KindMap, Map: map[string]fragment.Value{}},
		Provenance: map[string]string{},
	}
	shadowed := map[string][]string{}

	for _, frag := range fragments {
		if frag.Root.Kind != fragment.KindMap {
			return nil, fmt.Errorf("layer %q: %w", frag.Layer, fragment.ErrInvalidFragment)
		}
		m.Layers = append(m.Layers, frag.Layer)
		m.mergeMap(m.Root.Map, frag.Root, "", frag.Layer, shadowed)
	}

	return m, nil
}

func (m *Merged) mergeMap(base map[string]fragment.Value, incoming fragment.Value, prefix, layer string, shadowed map[string][]string) {
	for _, key := range incoming.SortedKeys() {
		value := incoming.Map[key]
		path := joinPath(prefix, key)

		existing, ok := base[key]
		if !ok {
			base[key] = value.Clone()
			m.recordLeaves(value, path, layer)
			continue
		}

		switch {
		case existing.Kind == fragment.KindMap && value.Kind == fragment.KindMap:
			m.mergeMap(existing.Map, value, path, layer, shadowed)
		case existing.Kind == fragment.KindList && value.Kind == fragment.KindList:
			base[key] = appendDedup(existing, value)
			m.Provenance[path] = layer
		default:
			if existing.Equal(value) {
				// Identical values are indistinguishable; the first
				// contributor keeps provenance and no override is recorded.
				continue
			}
			previous := m.winnerFor(path)
			chain := append(append([]string(nil), shadowed[path]...), previous...)
			shadowed[path] = chain
			m.Overrides = append(m.Overrides, Override{Path: path, Winner: layer, Shadowed: chain})
			m.clearLeaves(existing, path)
			base[key] = value.Clone()
			m.recordLeaves(value, path, layer)
		}
	}
}

// winnerFor returns the layers currently owning the subtree rooted at path.
func (m *Merged) winnerFor(path string) []string {
	if layer, ok := m.Provenance[path]; ok {
		return []string{layer}
	}
	seen := map[string]struct{}{}
	var owners []string
	prefix := path + "."
	for leaf, layer := range m.Provenance {
		if len(leaf) > len(prefix) && leaf[:len(prefix)] == prefix {
			if _, ok := seen[layer]; !ok {
				seen[layer] = struct{}{}
				owners = append(owners, layer)
			}
		}
	}
	return owners
}

func (m *Merged) recordLeaves(value fragment.Value, path, layer string) {
	if value.Kind == fragment.KindMap {
		for _, key := range value.SortedKeys() {
			m.recordLeaves(value.Map[key], joinPath(path, key), layer)
		}
		return
	}
	m.Provenance[path] = layer
}

func (m *Merged) clearLeaves(value fragment.Value, path string) {
	if value.Kind == fragment.KindMap {
		for _, key := range value.SortedKeys() {
			m.clearLeaves(value.Map[key], joinPath(path, key))
		}
		return
	}
	delete(m.Provenance, path)
}

func appendDedup(existing, incoming fragment.Value) fragment.Value {
	out := make([]fragment.Value, 0, len(existing.List)+len(incoming.List))
	out = append(out, existing.List...)
	for _, candidate := range incoming.List {
		duplicate := false
		for _, present := range out {
			if present.Equal(candidate) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			out = append(out, candidate.Clone())
		}
	}
	return fragment.Value{Kind: fragment.KindList, List: out}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// EncodeJSON renders the merged tree as indented JSON with lexically ordered
// keys, so identical inputs always serialise to identical bytes.
func (m *Merged) EncodeJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m.Root); err != nil {
		return nil, fmt.Errorf("encode merged configuration: %w", err)
	}
	return buf.Bytes(), nil
}
