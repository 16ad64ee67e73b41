// Package validate checks structural well-formedness of catalogs, profiles,
// fragments, and merged results. Issues are returned as lists and never
// raised; strict mode lets callers escalate any finding to a failure.
package validate

import (
	"errors"
	"fmt"
	"os"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/dobrovols/ctxctl/pkg/catalog"
	"github.com/dobrovols/ctxctl/pkg/fragment"
	"github.com/dobrovols/ctxctl/pkg/merge"
	"github.com/dobrovols/ctxctl/pkg/profile"
)

// ErrValidationFailed is returned by Escalate when findings block the operation.
var ErrValidationFailed = errors.New("validation failed")

// Severity grades a validation issue.
type Severity string

const (
	// SeverityWarning marks findings that do not block installation by default.
	SeverityWarning Severity = "warning"
	// SeverityError marks findings that always block installation.
	SeverityError Severity = "error"
)

// Issue is a single validation finding.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Path     string   `json:"path,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	if i.Path != "" {
		return fmt.Sprintf("%s %s: %s (%s)", i.Severity, i.Code, i.Message, i.Path)
	}
	return fmt.Sprintf("%s %s: %s", i.Severity, i.Code, i.Message)
}

// Fragment checks one loaded fragment for structural conformance.
func Fragment(f *fragment.Fragment) []Issue {
	var issues []Issue
	if f == nil {
		return []Issue{{Severity: SeverityError, Code: "fragment-nil", Message: "fragment is nil"}}
	}
	if f.Root.Kind != fragment.KindMap {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     "fragment-root",
			Path:     f.Source,
			Message:  "fragment root must be a mapping",
		})
		return issues
	}
	for _, key := range f.Root.SortedKeys() {
		if key == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "empty-key",
				Path:     f.Source,
				Message:  "mapping contains an empty key",
			})
		}
	}
	return issues
}

// Catalog checks context declarations: empty contexts are errors, missing
// declared files are warnings. A context with findings stays loadable.
func Catalog(c *catalog.Catalog) []Issue {
	var issues []Issue
	if c == nil {
		return []Issue{{Severity: SeverityError, Code: "catalog-nil", Message: "catalog is nil"}}
	}
	for _, name := range c.Names() {
		refs := c.Contexts[name]
		if len(refs) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "empty-context",
				Path:     name,
				Message:  "context declares no file references",
			})
			continue
		}
		res, err := c.Resolve(name)
		if err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "context-resolve",
				Path:     name,
				Message:  err.Error(),
			})
			continue
		}
		for _, warning := range res.Warnings {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Code:     string(warning.Kind),
				Path:     warning.Path,
				Message:  fmt.Sprintf("context %q references a missing file", name),
			})
		}
		if len(res.Files) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "context-empty-resolution",
				Path:     name,
				Message:  "context resolves to no existing files",
			})
		}
	}
	return issues
}

// ProfileSet checks profile declarations against the catalog: unresolved
// context references, unknown profile compositions, and duplicate layer
// references within one profile.
func ProfileSet(set profile.Set, c *catalog.Catalog) []Issue {
	var issues []Issue
	for _, name := range set.Names() {
		def := set.Profiles[name]
		if len(def.Layers) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "empty-profile",
				Path:     name,
				Message:  "profile declares no layers",
			})
		}
		seen := map[string]bool{}
		for _, ref := range def.Layers {
			if seen[ref] {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Code:     "duplicate-layer",
					Path:     name,
					Message:  fmt.Sprintf("layer %q is referenced more than once", ref),
				})
			}
			seen[ref] = true

			kind, target := profile.ClassifyRef(ref)
			switch kind {
			case profile.RefContext:
				if c == nil {
					issues = append(issues, Issue{
						Severity: SeverityError,
						Code:     "unresolved-context",
						Path:     name,
						Message:  fmt.Sprintf("layer %q references a context but no catalog is loaded", ref),
					})
					continue
				}
				if _, ok := c.Contexts[target]; !ok {
					issues = append(issues, Issue{
						Severity: SeverityError,
						Code:     "unresolved-context",
						Path:     name,
						Message:  fmt.Sprintf("layer %q references undeclared context %q", ref, target),
					})
				}
			case profile.RefProfile:
				if _, ok := set.Profiles[target]; !ok {
					issues = append(issues, Issue{
						Severity: SeverityError,
						Code:     "unresolved-profile",
						Path:     name,
						Message:  fmt.Sprintf("layer %q references undeclared profile %q", ref, target),
					})
				}
			}
		}
	}
	return issues
}

// Merged checks the merged result: every leaf must trace to a contributing
// layer, and when a schema is supplied the document must conform to it.
func Merged(m *merge.Merged, schema *jsonschema.Schema) []Issue {
	var issues []Issue
	if m == nil {
		return []Issue{{Severity: SeverityError, Code: "merged-nil", Message: "merged configuration is nil"}}
	}
	if m.Root.Kind != fragment.KindMap {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     "merged-root",
			Message:  "merged configuration root must be a mapping",
		})
		return issues
	}
	for path, layer := range m.Provenance {
		if layer == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "missing-provenance",
				Path:     path,
				Message:  "leaf has no contributing layer",
			})
		}
	}

	if schema != nil {
		doc, err := asSchemaDocument(m.Root)
		if err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "schema-document",
				Message:  err.Error(),
			})
			return issues
		}
		if err := schema.Validate(doc); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "schema",
				Message:  err.Error(),
			})
		}
	}
	return issues
}

// LoadSchema compiles a JSON Schema file for use with Merged.
func LoadSchema(path string) (*jsonschema.Schema, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema %q: %w", path, err)
	}
	defer fh.Close()

	doc, err := jsonschema.UnmarshalJSON(fh)
	if err != nil {
		return nil, fmt.Errorf("decode schema %q: %w", path, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(path, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", path, err)
	}
	return schema, nil
}

// Escalate converts findings to an error. Errors always block; in strict mode
// warnings block as well.
func Escalate(issues []Issue, strict bool) error {
	blocking := 0
	for _, issue := range issues {
		if issue.Severity == SeverityError || strict {
			blocking++
		}
	}
	if blocking == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d blocking issue(s)", ErrValidationFailed, blocking)
}

func asSchemaDocument(v fragment.Value) (any, error) {
	switch v.Kind {
	case fragment.KindScalar:
		return v.Scalar, nil
	case fragment.KindList:
		out := make([]any, 0, len(v.List))
		for _, item := range v.List {
			child, err := asSchemaDocument(item)
			if err != nil {
				return nil, err
			}
			out = append(out, child)
		}
		return out, nil
	case fragment.KindMap:
		out := make(map[string]any, len(v.Map))
		for key, item := range v.Map {
			child, err := asSchemaDocument(item)
			if err != nil {
				return nil, err
			}
			out[key] = child
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
}
