package profile_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dobrovols/ctxctl/pkg/catalog"
	"github.com/dobrovols/ctxctl/pkg/profile"
)

func writeBenchFile(path, body string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(body), 0o600)
}

func BenchmarkResolveLayeredProfile(b *testing.B) {
	root := b.TempDir()
	contexts := map[string][]string{}
	layers := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("ctx%02d", i)
		rel := filepath.Join("contexts", name+".yaml")
		body := fmt.Sprintf("key%02d: value\nshared: layer%02d\n", i, i)
		if err := writeBenchFile(filepath.Join(root, rel), body); err != nil {
			b.Fatalf("write fixture: %v", err)
		}
		contexts[name] = []string{rel}
		layers = append(layers, "context:"+name)
	}

	cat := catalog.New(root, contexts)
	set := profile.NewSet(map[string]profile.Definition{
		"wide": {Name: "wide", Layers: layers},
	})
	resolver := profile.NewResolver(set, cat, root, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := resolver.Resolve("wide"); err != nil {
			b.Fatalf("resolve: %v", err)
		}
	}
}
