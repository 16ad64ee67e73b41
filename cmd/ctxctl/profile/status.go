package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	internalstate "github.com/dobrovols/ctxctl/internal/state"
	pkgstate "github.com/dobrovols/ctxctl/pkg/state"
)

// StatusOptions captures CLI inputs for the status command.
type StatusOptions struct {
	HistoryFilePath string
	HistoryFileName string
	All             bool
	Output          string
}

// HistoryReader exposes the history queries the status command needs.
type HistoryReader interface {
	Last(pkgstate.Overrides) (*pkgstate.Record, error)
	List(pkgstate.Overrides) ([]pkgstate.Record, error)
}

// StatusDeps carries injectable collaborators for the status command.
type StatusDeps struct {
	History HistoryReader
}

// NewStatusCommand constructs the `ctxctl status` command.
func NewStatusCommand() *cobra.Command {
	opts := StatusOptions{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the most recent installation outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runStatus(cmd, opts, StatusDeps{})
		},
	}

	cmd.Flags().StringVar(&opts.HistoryFilePath, "history-file", "", "Absolute path for the installation history file")
	cmd.Flags().StringVar(&opts.HistoryFileName, "history-file-name", "", "Custom history file name within the state directory")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Show every recorded operation, newest last")
	cmd.Flags().StringVar(&opts.Output, "output", "text", "Output format: text or json")

	return cmd
}

// RunStatusForTest executes the status flow with injected dependencies.
func RunStatusForTest(cmd *cobra.Command, opts StatusOptions, deps StatusDeps) error {
	cmd.SilenceUsage = true
	return runStatus(cmd, opts, deps)
}

func runStatus(cmd *cobra.Command, opts StatusOptions, deps StatusDeps) error {
	if deps.History == nil {
		deps.History = pkgstate.NewManager(internalstate.NewResolver())
	}

	overrides := pkgstate.Overrides{
		StateFilePath: opts.HistoryFilePath,
		StateFileName: opts.HistoryFileName,
	}

	if opts.All {
		records, err := deps.History.List(overrides)
		if err != nil {
			return err
		}
		return emitRecords(cmd, records, opts.Output)
	}

	record, err := deps.History.Last(overrides)
	if err != nil {
		if errors.Is(err, pkgstate.ErrNoHistory) {
			fmt.Fprintln(cmd.OutOrStdout(), "No installation recorded yet")
			return nil
		}
		return err
	}
	return emitRecords(cmd, []pkgstate.Record{*record}, opts.Output)
}

func emitRecords(cmd *cobra.Command, records []pkgstate.Record, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tACTION\tSTATUS\tPROFILE\tSNAPSHOT\tFILES")
		for _, record := range records {
			snapshot := record.SnapshotID
			if record.RestoredSnapshot != "" {
				snapshot = record.RestoredSnapshot
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
				record.Timestamp, record.Action, record.Status, record.Profile, snapshot, len(record.FilesWritten))
		}
		return w.Flush()
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	default:
		return errUnsupportedOutput
	}
}
