package fragment_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dobrovols/ctxctl/pkg/fragment"
	"github.com/dobrovols/ctxctl/pkg/secrets"
)

func TestParseYAMLMapping(t *testing.T) {
	frag, err := fragment.Parse([]byte("mode: dev\ncount: 3\n"), "base.yaml", "base")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if frag.Layer != "base" {
		t.Fatalf("expected layer base, got %q", frag.Layer)
	}
	if frag.Root.Map["mode"].Scalar != "dev" {
		t.Fatalf("expected mode=dev, got %#v", frag.Root.Map["mode"].Scalar)
	}
	if frag.Root.Map["count"].Scalar != int64(3) {
		t.Fatalf("expected count=int64(3), got %#v", frag.Root.Map["count"].Scalar)
	}
}

func TestParseJSONDocument(t *testing.T) {
	frag, err := fragment.Parse([]byte(`{"hooks": {"preCommit": true}}`), "hooks.json", "hooks")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if frag.Root.Map["hooks"].Map["preCommit"].Scalar != true {
		t.Fatalf("expected preCommit true")
	}
}

func TestParseUnquotedTimestamp(t *testing.T) {
	frag, err := fragment.Parse([]byte("created: 2026-01-01T00:00:00Z\n"), "meta.yaml", "meta")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if frag.Root.Map["created"].Scalar != "2026-01-01T00:00:00Z" {
		t.Fatalf("expected timestamp as string, got %#v", frag.Root.Map["created"].Scalar)
	}
}

func TestParseRejectsNonMappingRoot(t *testing.T) {
	_, err := fragment.Parse([]byte("- one\n- two\n"), "list.yaml", "list")
	if !errors.Is(err, fragment.ErrInvalidFragment) {
		t.Fatalf("expected ErrInvalidFragment, got %v", err)
	}
}

func TestLoadEncryptedLayerRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	plainPath := filepath.Join(tmpDir, "personal.yaml")
	encPath := filepath.Join(tmpDir, "personal.enc")
	if err := os.WriteFile(plainPath, []byte("token-env: CUSTOM_TOKEN\n"), 0o600); err != nil {
		t.Fatalf("write plaintext: %v", err)
	}

	if _, err := secrets.EncryptFile(secrets.EncryptOptions{
		InputPath:  plainPath,
		OutputPath: encPath,
		Passphrase: "hunter2",
	}); err != nil {
		t.Fatalf("EncryptFile: %v", err)
	}

	frag, err := fragment.Load(encPath, "personal", fragment.LoadOptions{Passphrase: "hunter2"})
	if err != nil {
		t.Fatalf("Load encrypted: %v", err)
	}
	if frag.Root.Map["token-env"].Scalar != "CUSTOM_TOKEN" {
		t.Fatalf("decrypted content mismatch: %#v", frag.Root.Map)
	}
}

func TestLoadEncryptedLayerWithoutPassphrase(t *testing.T) {
	tmpDir := t.TempDir()
	plainPath := filepath.Join(tmpDir, "personal.yaml")
	encPath := filepath.Join(tmpDir, "personal.enc")
	if err := os.WriteFile(plainPath, []byte("a: b\n"), 0o600); err != nil {
		t.Fatalf("write plaintext: %v", err)
	}
	if _, err := secrets.EncryptFile(secrets.EncryptOptions{
		InputPath:  plainPath,
		OutputPath: encPath,
		Passphrase: "hunter2",
	}); err != nil {
		t.Fatalf("EncryptFile: %v", err)
	}

	_, err := fragment.Load(encPath, "personal", fragment.LoadOptions{})
	if !errors.Is(err, fragment.ErrPassphraseRequired) {
		t.Fatalf("expected ErrPassphraseRequired, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := fragment.Load(filepath.Join(t.TempDir(), "absent.yaml"), "absent", fragment.LoadOptions{})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped fs.ErrNotExist, got %v", err)
	}
}
