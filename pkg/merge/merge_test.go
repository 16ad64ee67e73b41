package merge_test

import (
	"bytes"
	"testing"

	"github.com/dobrovols/ctxctl/pkg/fragment"
	"github.com/dobrovols/ctxctl/pkg/merge"
)

func mustFragment(t *testing.T, layer, body string) *fragment.Fragment {
	t.Helper()
	frag, err := fragment.Parse([]byte(body), layer+".yaml", layer)
	if err != nil {
		t.Fatalf("parse fragment %s: %v", layer, err)
	}
	return frag
}

func TestMergeScalarLastWriteWins(t *testing.T) {
	base := mustFragment(t, "base", "mode: prod\nshared: x\n")
	dev := mustFragment(t, "dev", "mode: dev\n")

	merged, err := merge.Merge([]*fragment.Fragment{base, dev})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if merged.Root.Map["mode"].Scalar != "dev" {
		t.Fatalf("expected mode=dev, got %#v", merged.Root.Map["mode"].Scalar)
	}
	if merged.Root.Map["shared"].Scalar != "x" {
		t.Fatalf("expected shared=x, got %#v", merged.Root.Map["shared"].Scalar)
	}

	if got := merged.Provenance["mode"]; got != "dev" {
		t.Fatalf("expected provenance mode=dev, got %q", got)
	}
	if got := merged.Provenance["shared"]; got != "base" {
		t.Fatalf("expected provenance shared=base, got %q", got)
	}

	if len(merged.Overrides) != 1 {
		t.Fatalf("expected one override, got %#v", merged.Overrides)
	}
	override := merged.Overrides[0]
	if override.Path != "mode" || override.Winner != "dev" {
		t.Fatalf("unexpected override %#v", override)
	}
	if len(override.Shadowed) != 1 || override.Shadowed[0] != "base" {
		t.Fatalf("expected shadowed [base], got %#v", override.Shadowed)
	}
}

func TestMergeIdenticalScalarKeepsFirstProvenance(t *testing.T) {
	a := mustFragment(t, "a", "mode: dev\n")
	b := mustFragment(t, "b", "mode: dev\n")

	merged, err := merge.Merge([]*fragment.Fragment{a, b})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got := merged.Provenance["mode"]; got != "a" {
		t.Fatalf("expected first contributor to keep provenance, got %q", got)
	}
	if len(merged.Overrides) != 0 {
		t.Fatalf("identical values must not record overrides: %#v", merged.Overrides)
	}
}

func TestMergeListsAppendWithDedup(t *testing.T) {
	a := mustFragment(t, "a", "plugins:\n  - lint\n  - fmt\n")
	b := mustFragment(t, "b", "plugins:\n  - fmt\n  - test\n")

	merged, err := merge.Merge([]*fragment.Fragment{a, b})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	list := merged.Root.Map["plugins"].List
	got := make([]string, 0, len(list))
	for _, item := range list {
		got = append(got, item.Scalar.(string))
	}
	want := []string{"lint", "fmt", "test"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if len(merged.Overrides) != 0 {
		t.Fatalf("list append must not record overrides: %#v", merged.Overrides)
	}
}

func TestMergeMapsDeeply(t *testing.T) {
	a := mustFragment(t, "a", "server:\n  host: localhost\n  port: 8080\n")
	b := mustFragment(t, "b", "server:\n  port: 9090\n  tls: true\n")

	merged, err := merge.Merge([]*fragment.Fragment{a, b})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	server := merged.Root.Map["server"].Map
	if server["host"].Scalar != "localhost" {
		t.Fatalf("expected host preserved, got %#v", server["host"].Scalar)
	}
	if server["port"].Scalar != int64(9090) {
		t.Fatalf("expected port overridden, got %#v", server["port"].Scalar)
	}
	if server["tls"].Scalar != true {
		t.Fatalf("expected tls merged in, got %#v", server["tls"].Scalar)
	}
	if got := merged.Provenance["server.host"]; got != "a" {
		t.Fatalf("expected server.host from a, got %q", got)
	}
	if got := merged.Provenance["server.port"]; got != "b" {
		t.Fatalf("expected server.port from b, got %q", got)
	}
}

func TestMergeKindMismatchReplacesSubtree(t *testing.T) {
	a := mustFragment(t, "a", "value:\n  nested: true\n")
	b := mustFragment(t, "b", "value: flat\n")

	merged, err := merge.Merge([]*fragment.Fragment{a, b})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged.Root.Map["value"].Scalar != "flat" {
		t.Fatalf("expected later scalar to replace map, got %#v", merged.Root.Map["value"])
	}
	if _, ok := merged.Provenance["value.nested"]; ok {
		t.Fatalf("replaced subtree must drop stale provenance")
	}
	if len(merged.Overrides) != 1 || merged.Overrides[0].Winner != "b" {
		t.Fatalf("expected override by b, got %#v", merged.Overrides)
	}
}

func TestMergeOverrideChainAcrossThreeLayers(t *testing.T) {
	a := mustFragment(t, "a", "mode: one\n")
	b := mustFragment(t, "b", "mode: two\n")
	c := mustFragment(t, "c", "mode: three\n")

	merged, err := merge.Merge([]*fragment.Fragment{a, b, c})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged.Overrides) != 2 {
		t.Fatalf("expected two overrides, got %#v", merged.Overrides)
	}
	last := merged.Overrides[1]
	if last.Winner != "c" {
		t.Fatalf("expected final winner c, got %q", last.Winner)
	}
	if len(last.Shadowed) != 2 || last.Shadowed[0] != "a" || last.Shadowed[1] != "b" {
		t.Fatalf("expected shadow chain [a b], got %#v", last.Shadowed)
	}
}

func TestMergeEmptyInput(t *testing.T) {
	if _, err := merge.Merge(nil); err != merge.ErrNoFragments {
		t.Fatalf("expected ErrNoFragments, got %v", err)
	}
}

func TestEncodeJSONDeterministic(t *testing.T) {
	base := mustFragment(t, "base", "b: 2\na: 1\nnested:\n  z: true\n  m: [1, 2]\n")
	extra := mustFragment(t, "extra", "nested:\n  a: done\n")

	first, err := merge.Merge([]*fragment.Fragment{base, extra})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	firstBytes, err := first.EncodeJSON()
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}

	for i := 0; i < 20; i++ {
		again, err := merge.Merge([]*fragment.Fragment{base, extra})
		if err != nil {
			t.Fatalf("Merge: %v", err)
		}
		againBytes, err := again.EncodeJSON()
		if err != nil {
			t.Fatalf("EncodeJSON: %v", err)
		}
		if !bytes.Equal(firstBytes, againBytes) {
			t.Fatalf("merge output not byte-identical across runs:\n%s\n%s", firstBytes, againBytes)
		}
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	base := mustFragment(t, "base", "list:\n  - keep\nmap:\n  k: v\n")
	snapshot := base.Root.Clone()

	overlay := mustFragment(t, "overlay", "list:\n  - more\nmap:\n  k2: v2\n")
	if _, err := merge.Merge([]*fragment.Fragment{base, overlay}); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if !base.Root.Equal(snapshot) {
		t.Fatalf("merge mutated its input fragment")
	}
}
