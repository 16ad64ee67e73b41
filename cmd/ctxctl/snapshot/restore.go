// Package snapshot implements the restore and snapshots commands.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	internalstate "github.com/dobrovols/ctxctl/internal/state"
	pkginstall "github.com/dobrovols/ctxctl/pkg/install"
	"github.com/dobrovols/ctxctl/pkg/paths"
	"github.com/dobrovols/ctxctl/pkg/snapshot"
	pkgstate "github.com/dobrovols/ctxctl/pkg/state"
	"github.com/dobrovols/ctxctl/pkg/telemetry"
)

var errSnapshotIDRequired = errors.New("snapshot ID is required")

// RestoreOptions captures CLI inputs for the restore command.
type RestoreOptions struct {
	SnapshotID      string
	ConfigRoot      string
	BackupRoot      string
	HistoryFilePath string
	HistoryFileName string
	LockTimeout     time.Duration
	Output          string
}

// Restorer abstracts the restore engine for command tests.
type Restorer interface {
	Restore(ctx context.Context, snapshotID string, opts pkginstall.Options, targets pkginstall.Targets) (*pkginstall.Result, error)
}

// RestoreDeps carries injectable collaborators for the restore command.
type RestoreDeps struct {
	BuildRestorer  func(targets pkginstall.Targets, emitter *telemetry.Emitter) Restorer
	ResolveTargets func(configRoot, backupRoot string) (pkginstall.Targets, error)
}

func ensureRestoreDeps(deps *RestoreDeps) {
	if deps.BuildRestorer == nil {
		deps.BuildRestorer = func(targets pkginstall.Targets, emitter *telemetry.Emitter) Restorer {
			snapshots := snapshot.NewStore(targets.BackupRoot, pkginstall.LockFileName)
			history := pkgstate.NewManager(internalstate.NewResolver())
			return pkginstall.New(nil, snapshots, history, pkginstall.WithEmitter(emitter))
		}
	}
	if deps.ResolveTargets == nil {
		deps.ResolveTargets = resolveTargets
	}
}

func resolveTargets(configRoot, backupRoot string) (pkginstall.Targets, error) {
	resolver := paths.NewResolver()
	targets := pkginstall.Targets{ConfigRoot: configRoot, BackupRoot: backupRoot}
	if targets.ConfigRoot == "" {
		root, err := resolver.Resolve(paths.RoleConfigRoot)
		if err != nil {
			return pkginstall.Targets{}, err
		}
		targets.ConfigRoot = root
	}
	if targets.BackupRoot == "" {
		root, err := resolver.Resolve(paths.RoleBackupRoot)
		if err != nil {
			return pkginstall.Targets{}, err
		}
		targets.BackupRoot = root
	}
	return targets, nil
}

// NewRestoreCommand constructs the `ctxctl restore` command.
func NewRestoreCommand() *cobra.Command {
	opts := RestoreOptions{}
	cmd := &cobra.Command{
		Use:   "restore SNAPSHOT_ID",
		Short: "Restore the configuration root from a recorded snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			opts.SnapshotID = args[0]
			return runRestore(cmd, opts, RestoreDeps{})
		},
	}

	cmd.Flags().StringVar(&opts.ConfigRoot, "config-root", "", "Destination directory for installed configuration")
	cmd.Flags().StringVar(&opts.BackupRoot, "backup-root", "", "Directory where snapshots are stored")
	cmd.Flags().StringVar(&opts.HistoryFilePath, "history-file", "", "Absolute path for the installation history file")
	cmd.Flags().StringVar(&opts.HistoryFileName, "history-file-name", "", "Custom history file name within the state directory")
	cmd.Flags().DurationVar(&opts.LockTimeout, "lock-timeout", 0, "How long to wait for a concurrent install to finish")
	cmd.Flags().StringVar(&opts.Output, "output", "text", "Output format: text or json")

	return cmd
}

// RunRestoreForTest executes the restore flow with injected dependencies.
func RunRestoreForTest(cmd *cobra.Command, opts RestoreOptions, deps RestoreDeps) error {
	cmd.SilenceUsage = true
	return runRestore(cmd, opts, deps)
}

func runRestore(cmd *cobra.Command, opts RestoreOptions, deps RestoreDeps) error {
	ensureRestoreDeps(&deps)

	if strings.TrimSpace(opts.SnapshotID) == "" {
		return errSnapshotIDRequired
	}

	targets, err := deps.ResolveTargets(opts.ConfigRoot, opts.BackupRoot)
	if err != nil {
		return err
	}

	emitter := telemetry.NewEmitter(cmd.ErrOrStderr())
	restorer := deps.BuildRestorer(targets, emitter)

	result, err := restorer.Restore(cmd.Context(), opts.SnapshotID, pkginstall.Options{
		LockTimeout: opts.LockTimeout,
		History: pkgstate.Overrides{
			StateFilePath: opts.HistoryFilePath,
			StateFileName: opts.HistoryFileName,
		},
	}, targets)
	if err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(opts.Output)) {
	case "", "text":
		fmt.Fprintf(cmd.OutOrStdout(), "Restored snapshot %s\n", result.RestoredSnapshot)
		if result.SnapshotID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Pre-restore snapshot: %s\n", result.SnapshotID)
		}
		return nil
	case "json":
		return emitJSON(cmd, result)
	default:
		return errUnsupportedOutput
	}
}
