// Package fragment loads configuration source files into immutable,
// exhaustively typed value trees.
package fragment

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dobrovols/ctxctl/pkg/secrets"
)

var (
	// ErrInvalidFragment is returned when a source file does not parse to a mapping.
	ErrInvalidFragment = errors.New("fragment root must be a mapping")
	// ErrPassphraseRequired is returned for encrypted layers loaded without a passphrase.
	ErrPassphraseRequired = errors.New("passphrase required for encrypted layer")
)

// Fragment is the loaded content of one configuration source file.
// Immutable once loaded; merging always operates on clones.
type Fragment struct {
	Source string
	Layer  string
	Root   Value
}

// LoadOptions carry optional inputs for Load.
type LoadOptions struct {
	// Passphrase decrypts an encrypted personal layer envelope.
	Passphrase string
}

// Load reads and parses the file at path into a Fragment tagged with the
// given layer name. Encrypted envelopes are decrypted before parsing.
func Load(path, layer string, opts LoadOptions) (*Fragment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layer %q: %w", path, err)
	}

	if secrets.IsEncrypted(data) {
		if opts.Passphrase == "" {
			return nil, fmt.Errorf("%w: %s", ErrPassphraseRequired, path)
		}
		data, err = secrets.Decrypt(data, opts.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("decrypt layer %q: %w", path, err)
		}
	}

	return Parse(data, path, layer)
}

// Parse converts raw YAML or JSON bytes into a Fragment.
func Parse(data []byte, source, layer string) (*Fragment, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse layer %q: %w", source, err)
	}

	root, err := FromAny(doc)
	if err != nil {
		return nil, fmt.Errorf("layer %q: %w", source, err)
	}
	if root.Kind != KindMap {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFragment, source)
	}

	return &Fragment{Source: source, Layer: layer, Root: root}, nil
}
