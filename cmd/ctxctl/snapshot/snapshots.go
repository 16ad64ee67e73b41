package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	pkginstall "github.com/dobrovols/ctxctl/pkg/install"
	"github.com/dobrovols/ctxctl/pkg/paths"
	"github.com/dobrovols/ctxctl/pkg/snapshot"
)

var errUnsupportedOutput = errors.New("unsupported output format: expected text or json")

// ListOptions captures CLI inputs for the snapshots command.
type ListOptions struct {
	BackupRoot string
	Prune      int
	Output     string
}

// Lister exposes the snapshot store queries the command needs.
type Lister interface {
	List() ([]snapshot.Manifest, error)
	Prune(keep int) ([]string, error)
}

// ListDeps carries injectable collaborators for the snapshots command.
type ListDeps struct {
	BuildStore func(backupRoot string) Lister
}

// NewSnapshotsCommand constructs the `ctxctl snapshots` command.
func NewSnapshotsCommand() *cobra.Command {
	opts := ListOptions{Prune: -1}
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List recorded snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runSnapshots(cmd, opts, ListDeps{})
		},
	}

	cmd.Flags().StringVar(&opts.BackupRoot, "backup-root", "", "Directory where snapshots are stored")
	cmd.Flags().IntVar(&opts.Prune, "prune", -1, "Delete all but the newest N snapshots")
	cmd.Flags().StringVar(&opts.Output, "output", "text", "Output format: text or json")

	return cmd
}

// RunSnapshotsForTest executes the snapshots flow with injected dependencies.
func RunSnapshotsForTest(cmd *cobra.Command, opts ListOptions, deps ListDeps) error {
	cmd.SilenceUsage = true
	return runSnapshots(cmd, opts, deps)
}

func runSnapshots(cmd *cobra.Command, opts ListOptions, deps ListDeps) error {
	if deps.BuildStore == nil {
		deps.BuildStore = func(backupRoot string) Lister {
			return snapshot.NewStore(backupRoot, pkginstall.LockFileName)
		}
	}

	backupRoot := opts.BackupRoot
	if backupRoot == "" {
		root, err := paths.NewResolver().Resolve(paths.RoleBackupRoot)
		if err != nil {
			return err
		}
		backupRoot = root
	}
	store := deps.BuildStore(backupRoot)

	if opts.Prune >= 0 {
		removed, err := store.Prune(opts.Prune)
		if err != nil {
			return err
		}
		for _, id := range removed {
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned snapshot %s\n", id)
		}
	}

	manifests, err := store.List()
	if err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(opts.Output)) {
	case "", "text":
		if len(manifests) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No snapshots recorded")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tREASON\tPROFILE\tFILES")
		for _, manifest := range manifests {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
				manifest.ID, manifest.CreatedAt, manifest.Reason, manifest.Profile, len(manifest.Files))
		}
		return w.Flush()
	case "json":
		return emitJSON(cmd, manifests)
	default:
		return errUnsupportedOutput
	}
}

func emitJSON(cmd *cobra.Command, payload any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
