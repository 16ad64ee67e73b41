// Package snapshot captures and restores point-in-time copies of the target
// configuration root. Snapshots are immutable tarballs with an embedded
// checksum manifest; a snapshot is never mutated after creation.
package snapshot

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Error sentinel values for snapshot integrity.
var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrManifestMissing  = errors.New("snapshot manifest missing")
	ErrChecksumMismatch = errors.New("snapshot checksum mismatch")
	ErrPathOutsideRoot  = errors.New("snapshot entry escapes restore directory")
)

const (
	manifestName = "snapshot.yaml"
	filesPrefix  = "files/"
)

// FileRecord captures one file inside a snapshot.
type FileRecord struct {
	Path     string `yaml:"path"`
	Checksum string `yaml:"checksum"`
	Mode     uint32 `yaml:"mode"`
	Size     int64  `yaml:"size"`
}

// Manifest describes the contents and origin of a snapshot.
type Manifest struct {
	ID        string       `yaml:"id"`
	CreatedAt string       `yaml:"createdAt"`
	Reason    string       `yaml:"reason"`
	Profile   string       `yaml:"profile,omitempty"`
	Files     []FileRecord `yaml:"files"`
}

// Store manages timestamp-named snapshot tarballs under a backup root.
type Store struct {
	root   string
	ignore map[string]struct{}
	now    func() time.Time
}

// NewStore constructs a store rooted at backupRoot. Top-level entry names in
// ignore (such as the installer lock file) are excluded from capture and
// untouched by restore.
func NewStore(backupRoot string, ignore ...string) *Store {
	skip := make(map[string]struct{}, len(ignore))
	for _, name := range ignore {
		skip[name] = struct{}{}
	}
	return &Store{root: filepath.Clean(backupRoot), now: time.Now, ignore: skip}
}

// Create captures every regular file under configRoot into a new snapshot and
// returns its manifest. Creation is all-or-nothing: a failure removes the
// partially written tarball.
func (s *Store) Create(configRoot, reason, profileName string) (*Manifest, error) {
	if err := os.MkdirAll(s.root, 0o700); err != nil {
		return nil, fmt.Errorf("create backup root: %w", err)
	}

	manifest := &Manifest{
		ID:        s.newID(),
		CreatedAt: s.now().UTC().Format(time.RFC3339),
		Reason:    reason,
		Profile:   profileName,
	}

	var files []string
	err := filepath.WalkDir(configRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == configRoot {
				return filepath.SkipAll
			}
			return err
		}
		rel, relErr := filepath.Rel(configRoot, path)
		if relErr != nil {
			return relErr
		}
		if s.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && d.Type().IsRegular() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk configuration root: %w", err)
	}
	sort.Strings(files)

	var payload bytes.Buffer
	tw := tar.NewWriter(&payload)
	for _, rel := range files {
		abs := filepath.Join(configRoot, rel)
		data, readErr := os.ReadFile(abs)
		if readErr != nil {
			return nil, fmt.Errorf("capture %q: %w", rel, readErr)
		}
		info, statErr := os.Stat(abs)
		if statErr != nil {
			return nil, fmt.Errorf("capture %q: %w", rel, statErr)
		}
		sum := sha256.Sum256(data)
		record := FileRecord{
			Path:     filepath.ToSlash(rel),
			Checksum: hex.EncodeToString(sum[:]),
			Mode:     uint32(info.Mode().Perm()),
			Size:     int64(len(data)),
		}
		manifest.Files = append(manifest.Files, record)
		if err := writeTarEntry(tw, filesPrefix+record.Path, data, int64(record.Mode)); err != nil {
			return nil, err
		}
	}

	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeTarEntry(tw, manifestName, manifestBytes, 0o600); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("finalise snapshot: %w", err)
	}

	target := s.tarballPath(manifest.ID)
	if err := os.WriteFile(target, payload.Bytes(), 0o600); err != nil {
		os.Remove(target)
		return nil, fmt.Errorf("write snapshot %q: %w", manifest.ID, err)
	}
	return manifest, nil
}

// Restore replaces the contents of configRoot with the snapshot's captured
// state, byte for byte. Checksums are verified before any file is touched, so
// a corrupted snapshot never produces a partial restore.
func (s *Store) Restore(id, configRoot string) (*Manifest, error) {
	manifest, entries, err := s.read(id)
	if err != nil {
		return nil, err
	}

	byPath := make(map[string][]byte, len(entries))
	for name, data := range entries {
		byPath[name] = data
	}
	for _, record := range manifest.Files {
		data, ok := byPath[record.Path]
		if !ok {
			return nil, fmt.Errorf("%w: %s missing from archive", ErrChecksumMismatch, record.Path)
		}
		sum := sha256.Sum256(data)
		if !strings.EqualFold(hex.EncodeToString(sum[:]), record.Checksum) {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, record.Path)
		}
	}

	if err := s.clearRoot(configRoot); err != nil {
		return nil, err
	}
	for _, record := range manifest.Files {
		target, err := safeJoin(configRoot, filepath.FromSlash(record.Path))
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
			return nil, fmt.Errorf("create parent dir for %s: %w", record.Path, err)
		}
		if err := os.WriteFile(target, byPath[record.Path], fs.FileMode(record.Mode)); err != nil {
			return nil, fmt.Errorf("restore %s: %w", record.Path, err)
		}
	}
	return manifest, nil
}

// Load returns the manifest of one snapshot without restoring it.
func (s *Store) Load(id string) (*Manifest, error) {
	manifest, _, err := s.read(id)
	return manifest, err
}

// List returns the manifests of every retained snapshot, newest first.
func (s *Store) List() ([]Manifest, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup root: %w", err)
	}

	var manifests []Manifest
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".tar") {
			continue
		}
		manifest, _, err := s.read(strings.TrimSuffix(name, ".tar"))
		if err != nil {
			continue
		}
		manifests = append(manifests, *manifest)
	}
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].ID > manifests[j].ID })
	return manifests, nil
}

// Prune removes all but the newest keep snapshots and returns the removed IDs.
func (s *Store) Prune(keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	manifests, err := s.List()
	if err != nil {
		return nil, err
	}
	var removed []string
	for i := keep; i < len(manifests); i++ {
		id := manifests[i].ID
		if err := os.Remove(s.tarballPath(id)); err != nil {
			return removed, fmt.Errorf("remove snapshot %q: %w", id, err)
		}
		removed = append(removed, id)
	}
	return removed, nil
}

func (s *Store) read(id string) (*Manifest, map[string][]byte, error) {
	data, err := os.ReadFile(s.tarballPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %q", ErrSnapshotNotFound, id)
		}
		return nil, nil, fmt.Errorf("read snapshot %q: %w", id, err)
	}

	tr := tar.NewReader(bytes.NewReader(data))
	var manifestBytes []byte
	entries := map[string][]byte{}
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read snapshot entry: %w", err)
		}
		if hdr.Typeflag == tar.TypeDir {
			continue
		}
		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, tr); err != nil {
			return nil, nil, fmt.Errorf("copy snapshot entry %s: %w", hdr.Name, err)
		}
		if hdr.Name == manifestName {
			manifestBytes = buf.Bytes()
			continue
		}
		entries[strings.TrimPrefix(hdr.Name, filesPrefix)] = buf.Bytes()
	}
	if manifestBytes == nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrManifestMissing, id)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &manifest, entries, nil
}

func (s *Store) clearRoot(configRoot string) error {
	entries, err := os.ReadDir(configRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return os.MkdirAll(configRoot, 0o700)
		}
		return fmt.Errorf("read configuration root: %w", err)
	}
	for _, entry := range entries {
		if s.ignored(entry.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(configRoot, entry.Name())); err != nil {
			return fmt.Errorf("clear %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (s *Store) ignored(rel string) bool {
	top := rel
	if i := strings.IndexRune(rel, os.PathSeparator); i >= 0 {
		top = rel[:i]
	}
	_, ok := s.ignore[top]
	return ok
}

func (s *Store) newID() string {
	base := s.now().UTC().Format("20060102T150405Z")
	id := base
	for n := 2; ; n++ {
		if _, err := os.Stat(s.tarballPath(id)); errors.Is(err, fs.ErrNotExist) {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

func (s *Store) tarballPath(id string) string {
	return filepath.Join(s.root, id+".tar")
}

func writeTarEntry(tw *tar.Writer, name string, data []byte, mode int64) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     mode,
		Size:     int64(len(data)),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write tar entry %s: %w", name, err)
	}
	return nil
}

func safeJoin(root, name string) (string, error) {
	base, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve base path: %w", err)
	}

	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) {
		return "", ErrPathOutsideRoot
	}
	if vol := filepath.VolumeName(cleaned); vol != "" {
		return "", ErrPathOutsideRoot
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", ErrPathOutsideRoot
	}

	target := filepath.Join(base, cleaned)
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", ErrPathOutsideRoot
	}
	return target, nil
}
