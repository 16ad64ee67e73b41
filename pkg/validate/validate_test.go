package validate_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dobrovols/ctxctl/pkg/catalog"
	"github.com/dobrovols/ctxctl/pkg/fragment"
	"github.com/dobrovols/ctxctl/pkg/merge"
	"github.com/dobrovols/ctxctl/pkg/profile"
	"github.com/dobrovols/ctxctl/pkg/validate"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCatalogFindings(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "present.yaml"), "a: 1\n")

	c := catalog.New(root, map[string][]string{
		"ok":      {"present.yaml"},
		"empty":   {},
		"partial": {"present.yaml", "missing.yaml"},
		"hollow":  {"missing.yaml"},
	})

	issues := validate.Catalog(c)

	byCode := map[string]int{}
	for _, issue := range issues {
		byCode[issue.Code]++
	}
	if byCode["empty-context"] != 1 {
		t.Errorf("expected one empty-context error, got %#v", issues)
	}
	if byCode["missing-file"] != 2 {
		t.Errorf("expected two missing-file warnings, got %#v", issues)
	}
	if byCode["context-empty-resolution"] != 1 {
		t.Errorf("expected one context-empty-resolution error, got %#v", issues)
	}
}

func TestProfileSetFindings(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.yaml"), "a: 1\n")
	c := catalog.New(root, map[string][]string{"known": {"a.yaml"}})

	set := profile.NewSet(map[string]profile.Definition{
		"ok":    {Name: "ok", Layers: []string{"context:known"}},
		"empty": {Name: "empty"},
		"bad": {Name: "bad", Layers: []string{
			"context:unknown",
			"profile:ghost",
			"a.yaml",
			"a.yaml",
		}},
	})

	issues := validate.ProfileSet(set, c)

	byCode := map[string]int{}
	for _, issue := range issues {
		byCode[issue.Code]++
	}
	if byCode["empty-profile"] != 1 {
		t.Errorf("expected empty-profile error, got %#v", issues)
	}
	if byCode["unresolved-context"] != 1 {
		t.Errorf("expected unresolved-context error, got %#v", issues)
	}
	if byCode["unresolved-profile"] != 1 {
		t.Errorf("expected unresolved-profile error, got %#v", issues)
	}
	if byCode["duplicate-layer"] != 1 {
		t.Errorf("expected duplicate-layer warning, got %#v", issues)
	}
}

func TestMergedSchemaValidation(t *testing.T) {
	schemaPath := filepath.Join(t.TempDir(), "schema.json")
	writeFile(t, schemaPath, `{
  "type": "object",
  "properties": {
    "mode": {"type": "string", "enum": ["dev", "prod"]}
  },
  "required": ["mode"]
}`)
	schema, err := validate.LoadSchema(schemaPath)
	if err != nil {
		t.Fatalf("LoadSchema: %v", err)
	}

	good, err := fragment.Parse([]byte("mode: dev\n"), "good.yaml", "good")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	merged, err := merge.Merge([]*fragment.Fragment{good})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if issues := validate.Merged(merged, schema); len(issues) != 0 {
		t.Fatalf("expected conforming document, got %#v", issues)
	}

	bad, err := fragment.Parse([]byte("mode: 42\n"), "bad.yaml", "bad")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	merged, err = merge.Merge([]*fragment.Fragment{bad})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	issues := validate.Merged(merged, schema)
	if len(issues) == 0 {
		t.Fatal("expected schema violation")
	}
	if issues[0].Code != "schema" || issues[0].Severity != validate.SeverityError {
		t.Fatalf("unexpected issue %#v", issues[0])
	}
}

func TestFragmentFindings(t *testing.T) {
	frag, err := fragment.Parse([]byte("key: value\n"), "ok.yaml", "ok")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if issues := validate.Fragment(frag); len(issues) != 0 {
		t.Fatalf("expected clean fragment, got %#v", issues)
	}
	if issues := validate.Fragment(nil); len(issues) != 1 || issues[0].Code != "fragment-nil" {
		t.Fatalf("expected fragment-nil error, got %#v", issues)
	}
}

func TestEscalate(t *testing.T) {
	warning := validate.Issue{Severity: validate.SeverityWarning, Code: "w", Message: "warn"}
	fatal := validate.Issue{Severity: validate.SeverityError, Code: "e", Message: "err"}

	if err := validate.Escalate([]validate.Issue{warning}, false); err != nil {
		t.Fatalf("warnings should not block by default: %v", err)
	}
	if err := validate.Escalate([]validate.Issue{warning}, true); !errors.Is(err, validate.ErrValidationFailed) {
		t.Fatalf("strict mode should block warnings, got %v", err)
	}
	err := validate.Escalate([]validate.Issue{warning, fatal}, false)
	if !errors.Is(err, validate.ErrValidationFailed) {
		t.Fatalf("errors should always block, got %v", err)
	}
	if !strings.Contains(err.Error(), "1 blocking issue") {
		t.Fatalf("expected blocking count in message, got %q", err)
	}
}
