// Package install orchestrates profile installation: snapshot, atomic write,
// verification, and rollback against a target configuration root.
package install

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/dobrovols/ctxctl/pkg/fragment"
	"github.com/dobrovols/ctxctl/pkg/profile"
	"github.com/dobrovols/ctxctl/pkg/snapshot"
	"github.com/dobrovols/ctxctl/pkg/state"
	"github.com/dobrovols/ctxctl/pkg/telemetry"
	"github.com/dobrovols/ctxctl/pkg/validate"
)

// SettingsFileName is the merged configuration document written to the root.
const SettingsFileName = "settings.json"

// ContextsDirName holds the distributed context files inside the root.
const ContextsDirName = "contexts"

var (
	// ErrBackupFailed is returned when the pre-write snapshot cannot be fully captured.
	ErrBackupFailed = errors.New("backup could not be captured")
	// ErrWriteFailed is returned after a failed write was rolled back.
	ErrWriteFailed = errors.New("write failed and was rolled back")
	// ErrRestoreFailed is returned when a snapshot cannot be re-applied.
	ErrRestoreFailed = errors.New("restore failed")
	// ErrUnmanagedRoot is returned when the target root holds foreign files
	// and --force was not given.
	ErrUnmanagedRoot = errors.New("configuration root contains unmanaged files")
)

// ProfileResolver resolves a profile name into its merged configuration.
type ProfileResolver interface {
	Resolve(name string) (*profile.Resolution, error)
}

// SnapshotStore captures and re-applies configuration root snapshots.
type SnapshotStore interface {
	Create(configRoot, reason, profileName string) (*snapshot.Manifest, error)
	Restore(id, configRoot string) (*snapshot.Manifest, error)
}

// HistoryAppender records completed operations.
type HistoryAppender interface {
	Append(state.Record, state.Overrides) (string, error)
}

// Targets names the filesystem locations one invocation operates on. They are
// always passed explicitly; the installer never reads ambient process state.
type Targets struct {
	ConfigRoot string
	BackupRoot string
}

// Options captures caller choices for one invocation.
type Options struct {
	Profile     string
	DryRun      bool
	Force       bool
	Strict      bool
	LockTimeout time.Duration
	History     state.Overrides
}

// Installer owns the lifecycle of snapshots and installation results.
type Installer struct {
	resolver  ProfileResolver
	snapshots SnapshotStore
	history   HistoryAppender
	emitter   *telemetry.Emitter
	schema    *jsonschema.Schema
	writeFile func(path string, data []byte, perm fs.FileMode) error
}

// InstallerOption customises an Installer.
type InstallerOption func(*Installer)

// WithEmitter attaches a phase event emitter.
func WithEmitter(e *telemetry.Emitter) InstallerOption {
	return func(i *Installer) { i.emitter = e }
}

// WithSchema validates the merged document against a JSON Schema before writing.
func WithSchema(s *jsonschema.Schema) InstallerOption {
	return func(i *Installer) { i.schema = s }
}

// WithWriteFile overrides the file writer, used by fault-injection tests.
func WithWriteFile(fn func(string, []byte, fs.FileMode) error) InstallerOption {
	return func(i *Installer) { i.writeFile = fn }
}

// New constructs an Installer.
func New(resolver ProfileResolver, snapshots SnapshotStore, history HistoryAppender, opts ...InstallerOption) *Installer {
	i := &Installer{
		resolver:  resolver,
		snapshots: snapshots,
		history:   history,
		writeFile: atomicWriteFile,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type plannedFile struct {
	Rel  string
	Data []byte
	Mode fs.FileMode
}

// Install runs the full state machine for one profile installation.
// Cancellation is honoured up through validation; once writing starts the
// operation runs to completion or rolls back.
func (i *Installer) Install(ctx context.Context, opts Options, targets Targets) (*Result, error) {
	result := &Result{
		Action:       ActionInstall,
		Profile:      opts.Profile,
		Status:       StatusFailed,
		FilesWritten: []string{},
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}

	// Resolving
	var res *profile.Resolution
	err := i.phase(telemetry.PhaseResolve, map[string]string{"profile": opts.Profile}, func() error {
		var resolveErr error
		res, resolveErr = i.resolver.Resolve(opts.Profile)
		return resolveErr
	})
	if err != nil {
		return result, err
	}
	for _, warning := range res.Warnings {
		result.Warnings = append(result.Warnings, warning.String())
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	// Validating
	err = i.phase(telemetry.PhaseValidate, map[string]string{"profile": opts.Profile}, func() error {
		issues := validate.Merged(res.Merged, i.schema)
		for _, warning := range res.Warnings {
			issues = append(issues, validate.Issue{
				Severity: validate.SeverityWarning,
				Code:     string(warning.Kind),
				Path:     warning.Path,
				Message:  "context file missing at resolution time",
			})
		}
		return validate.Escalate(issues, opts.Strict)
	})
	if err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	plan, err := i.plan(res)
	if err != nil {
		return result, err
	}

	if opts.DryRun {
		for _, file := range plan {
			result.PlannedWrites = append(result.PlannedWrites, file.Rel)
		}
		result.Status = StatusSuccess
		return result, nil
	}

	if !opts.Force {
		if err := checkManagedRoot(targets.ConfigRoot); err != nil {
			return result, err
		}
	}

	held, err := acquireLock(targets.ConfigRoot, opts.LockTimeout)
	if err != nil {
		return result, err
	}
	defer held.release()

	// Backing up
	var snap *snapshot.Manifest
	err = i.phase(telemetry.PhaseBackup, map[string]string{"profile": opts.Profile}, func() error {
		var createErr error
		snap, createErr = i.snapshots.Create(targets.ConfigRoot, "pre-install", opts.Profile)
		if createErr != nil {
			return fmt.Errorf("%w: %w", ErrBackupFailed, createErr)
		}
		return nil
	})
	if err != nil {
		return result, err
	}
	result.SnapshotID = snap.ID

	// Writing
	err = i.phase(telemetry.PhaseWrite, map[string]string{"profile": opts.Profile, "snapshot": snap.ID}, func() error {
		return i.applyPlan(plan, targets.ConfigRoot, result)
	})
	if err != nil {
		if _, restoreErr := i.snapshots.Restore(snap.ID, targets.ConfigRoot); restoreErr != nil {
			err = fmt.Errorf("%w; rollback also failed: %v", err, restoreErr)
		} else {
			result.RestoredSnapshot = snap.ID
		}
		result.FilesWritten = []string{}
		i.record(result, opts)
		return result, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	// Verifying
	result.Status = StatusSuccess
	verifyErr := i.phase(telemetry.PhaseVerify, map[string]string{"profile": opts.Profile}, func() error {
		warnings := i.verify(plan, res, targets.ConfigRoot)
		if len(warnings) > 0 {
			result.Status = StatusPartial
			result.Warnings = append(result.Warnings, warnings...)
		}
		return nil
	})
	if verifyErr != nil {
		return result, verifyErr
	}

	i.record(result, opts)
	return result, nil
}

// Restore reverses a prior installation. The current state is snapshotted
// first, so a restore is itself a tracked, reversible operation.
func (i *Installer) Restore(ctx context.Context, snapshotID string, opts Options, targets Targets) (*Result, error) {
	result := &Result{
		Action:           ActionRestore,
		Status:           StatusFailed,
		RestoredSnapshot: snapshotID,
		FilesWritten:     []string{},
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	held, err := acquireLock(targets.ConfigRoot, opts.LockTimeout)
	if err != nil {
		return result, err
	}
	defer held.release()

	var snap *snapshot.Manifest
	err = i.phase(telemetry.PhaseBackup, map[string]string{"restoring": snapshotID}, func() error {
		var createErr error
		snap, createErr = i.snapshots.Create(targets.ConfigRoot, "pre-restore", "")
		if createErr != nil {
			return fmt.Errorf("%w: %w", ErrBackupFailed, createErr)
		}
		return nil
	})
	if err != nil {
		return result, err
	}
	result.SnapshotID = snap.ID

	err = i.phase(telemetry.PhaseRestore, map[string]string{"snapshot": snapshotID}, func() error {
		restored, restoreErr := i.snapshots.Restore(snapshotID, targets.ConfigRoot)
		if restoreErr != nil {
			if errors.Is(restoreErr, snapshot.ErrSnapshotNotFound) {
				return restoreErr
			}
			return fmt.Errorf("%w: %w", ErrRestoreFailed, restoreErr)
		}
		for _, record := range restored.Files {
			result.FilesWritten = append(result.FilesWritten, record.Path)
		}
		result.Profile = restored.Profile
		return nil
	})
	if err != nil {
		i.record(result, opts)
		return result, err
	}

	result.Status = StatusSuccess
	i.record(result, opts)
	return result, nil
}

func (i *Installer) plan(res *profile.Resolution) ([]plannedFile, error) {
	merged, err := res.Merged.EncodeJSON()
	if err != nil {
		return nil, err
	}
	plan := []plannedFile{{Rel: SettingsFileName, Data: merged, Mode: 0o600}}

	index := map[string]int{}
	for _, src := range res.ContextFiles {
		data, readErr := os.ReadFile(src)
		if readErr != nil {
			return nil, fmt.Errorf("read context file %q: %w", src, readErr)
		}
		rel := filepath.ToSlash(filepath.Join(ContextsDirName, filepath.Base(src)))
		if pos, ok := index[rel]; ok {
			// Same basename from a later layer wins, matching merge order.
			plan[pos].Data = data
			continue
		}
		index[rel] = len(plan)
		plan = append(plan, plannedFile{Rel: rel, Data: data, Mode: 0o600})
	}
	return plan, nil
}

func (i *Installer) applyPlan(plan []plannedFile, configRoot string, result *Result) error {
	for _, file := range plan {
		target := filepath.Join(configRoot, filepath.FromSlash(file.Rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
			return fmt.Errorf("create parent dir for %s: %w", file.Rel, err)
		}
		if err := i.writeFile(target, file.Data, file.Mode); err != nil {
			return fmt.Errorf("write %s: %w", file.Rel, err)
		}
		result.FilesWritten = append(result.FilesWritten, file.Rel)
	}
	return nil
}

// verify re-reads written files and confirms they round-trip. Mismatches
// downgrade the result rather than failing it: the configuration was
// physically written.
func (i *Installer) verify(plan []plannedFile, res *profile.Resolution, configRoot string) []string {
	var warnings []string
	for _, file := range plan {
		target := filepath.Join(configRoot, filepath.FromSlash(file.Rel))
		data, err := os.ReadFile(target)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("verify %s: %v", file.Rel, err))
			continue
		}
		if file.Rel == SettingsFileName {
			frag, parseErr := fragment.Parse(data, target, "verify")
			if parseErr != nil {
				warnings = append(warnings, fmt.Sprintf("verify %s: %v", file.Rel, parseErr))
				continue
			}
			if !frag.Root.Equal(res.Merged.Root) {
				warnings = append(warnings, fmt.Sprintf("verify %s: written document differs from merged result", file.Rel))
			}
			continue
		}
		if !bytes.Equal(data, file.Data) {
			expected := sha256.Sum256(file.Data)
			actual := sha256.Sum256(data)
			warnings = append(warnings, fmt.Sprintf("verify %s: checksum %s, expected %s",
				file.Rel, hex.EncodeToString(actual[:8]), hex.EncodeToString(expected[:8])))
		}
	}
	return warnings
}

func (i *Installer) record(result *Result, opts Options) {
	if i.history == nil {
		return
	}
	record := state.Record{
		Action:           string(result.Action),
		Status:           string(result.Status),
		Profile:          result.Profile,
		SnapshotID:       result.SnapshotID,
		RestoredSnapshot: result.RestoredSnapshot,
		FilesWritten:     result.FilesWritten,
		Warnings:         result.Warnings,
		Timestamp:        result.Timestamp,
	}
	if _, err := i.history.Append(record, opts.History); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("history not recorded: %v", err))
	}
}

func (i *Installer) phase(phase telemetry.Phase, metadata map[string]string, fn func() error) error {
	if i.emitter == nil {
		return fn()
	}
	return i.emitter.EmitPhase(phase, metadata, fn)
}

// checkManagedRoot refuses to write into a non-empty root that ctxctl has not
// installed before, unless the caller forces it.
func checkManagedRoot(configRoot string) error {
	entries, err := os.ReadDir(configRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("inspect configuration root: %w", err)
	}
	foreign := false
	managed := false
	for _, entry := range entries {
		switch entry.Name() {
		case LockFileName:
		case SettingsFileName, ContextsDirName:
			managed = true
		default:
			foreign = true
		}
	}
	if foreign && !managed {
		return fmt.Errorf("%w: %s (use --force to overwrite)", ErrUnmanagedRoot, configRoot)
	}
	return nil
}

func atomicWriteFile(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ctxctl-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
