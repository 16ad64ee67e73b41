package profile

import (
	"sort"
	"strings"
)

// Layer reference prefixes understood by the resolver.
const (
	contextRefPrefix = "context:"
	profileRefPrefix = "profile:"
)

// RefKind classifies a layer reference.
type RefKind string

const (
	// RefFile points at a fragment file directly.
	RefFile RefKind = "file"
	// RefContext expands a named context from the catalog.
	RefContext RefKind = "context"
	// RefProfile inlines another profile's layers.
	RefProfile RefKind = "profile"
)

// Definition describes one profile: an ordered list of layer references.
// Later layers win on merge conflicts.
type Definition struct {
	Name        string
	Description string
	Layers      []string
}

// Clone produces a deep copy of the definition.
func (d Definition) Clone() Definition {
	out := Definition{Name: d.Name, Description: d.Description}
	if len(d.Layers) > 0 {
		out.Layers = append([]string(nil), d.Layers...)
	}
	return out
}

// Set holds the declared profiles of one configuration document.
type Set struct {
	Profiles map[string]Definition
}

// NewSet builds a Set from decoded definitions.
func NewSet(defs map[string]Definition) Set {
	if defs == nil {
		defs = map[string]Definition{}
	}
	return Set{Profiles: defs}
}

// Names returns the declared profile names in lexical order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s.Profiles))
	for name := range s.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClassifyRef splits a layer reference into its kind and target.
func ClassifyRef(ref string) (RefKind, string) {
	switch {
	case strings.HasPrefix(ref, contextRefPrefix):
		return RefContext, strings.TrimPrefix(ref, contextRefPrefix)
	case strings.HasPrefix(ref, profileRefPrefix):
		return RefProfile, strings.TrimPrefix(ref, profileRefPrefix)
	default:
		return RefFile, ref
	}
}
