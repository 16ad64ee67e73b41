// Package profile implements the install, validate, and status commands.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dobrovols/ctxctl/internal/config"
	internalstate "github.com/dobrovols/ctxctl/internal/state"
	"github.com/dobrovols/ctxctl/internal/validation"
	"github.com/dobrovols/ctxctl/pkg/fragment"
	pkginstall "github.com/dobrovols/ctxctl/pkg/install"
	"github.com/dobrovols/ctxctl/pkg/paths"
	pkgprofile "github.com/dobrovols/ctxctl/pkg/profile"
	"github.com/dobrovols/ctxctl/pkg/snapshot"
	pkgstate "github.com/dobrovols/ctxctl/pkg/state"
	"github.com/dobrovols/ctxctl/pkg/telemetry"
	"github.com/dobrovols/ctxctl/pkg/validate"
)

var (
	errProfileRequired   = errors.New("profile name is required")
	errUnsupportedOutput = errors.New("unsupported output format: expected text or json")

	titleCaser = cases.Title(language.English)
)

// InstallOptions captures CLI inputs for the install command.
type InstallOptions struct {
	Profile         string
	ConfigPath      string
	DryRun          bool
	Force           bool
	Strict          bool
	Passphrase      string
	ConfigRoot      string
	BackupRoot      string
	HistoryFilePath string
	HistoryFileName string
	LockTimeout     time.Duration
	Output          string
}

// Engine abstracts the installer for command tests.
type Engine interface {
	Install(ctx context.Context, opts pkginstall.Options, targets pkginstall.Targets) (*pkginstall.Result, error)
	Restore(ctx context.Context, snapshotID string, opts pkginstall.Options, targets pkginstall.Targets) (*pkginstall.Result, error)
}

// Deps carries injectable collaborators for command execution.
type Deps struct {
	Locate           func(string) (config.LocationResult, error)
	LoadDocument     func(string) (*config.Document, error)
	BuildEngine      func(*config.Document, string, *telemetry.Emitter) (Engine, error)
	ResolveTargets   func(InstallOptions) (pkginstall.Targets, error)
	Preflight        func(validation.TargetConfig) validation.Result
	TelemetryEmitter func(io.Writer) *telemetry.Emitter
}

func ensureDeps(deps *Deps) {
	if deps.Locate == nil {
		deps.Locate = config.LocateConfig
	}
	if deps.LoadDocument == nil {
		deps.LoadDocument = func(path string) (*config.Document, error) {
			return config.NewLoader().Load(path)
		}
	}
	if deps.BuildEngine == nil {
		deps.BuildEngine = buildEngine
	}
	if deps.ResolveTargets == nil {
		deps.ResolveTargets = resolveTargets
	}
	if deps.Preflight == nil {
		deps.Preflight = func(cfg validation.TargetConfig) validation.Result {
			return validation.ValidateTargets(cfg, nil)
		}
	}
	if deps.TelemetryEmitter == nil {
		deps.TelemetryEmitter = telemetry.NewEmitter
	}
}

func buildEngine(doc *config.Document, passphrase string, emitter *telemetry.Emitter) (Engine, error) {
	loader := func(path, layer string) (*fragment.Fragment, error) {
		return fragment.Load(path, layer, fragment.LoadOptions{Passphrase: passphrase})
	}
	resolver := pkgprofile.NewResolver(doc.Profiles, doc.Catalog, doc.RootDir, loader)

	installerOpts := []pkginstall.InstallerOption{pkginstall.WithEmitter(emitter)}
	if doc.SchemaPath != "" {
		schema, err := validate.LoadSchema(doc.SchemaPath)
		if err != nil {
			return nil, err
		}
		installerOpts = append(installerOpts, pkginstall.WithSchema(schema))
	}

	history := pkgstate.NewManager(internalstate.NewResolver())
	return &engineFactory{
		resolver:      resolver,
		history:       history,
		installerOpts: installerOpts,
	}, nil
}

// engineFactory defers snapshot store construction until the backup root is
// known from the resolved targets.
type engineFactory struct {
	resolver      *pkgprofile.Resolver
	history       *pkgstate.Manager
	installerOpts []pkginstall.InstallerOption
}

func (e *engineFactory) installer(targets pkginstall.Targets) *pkginstall.Installer {
	snapshots := snapshot.NewStore(targets.BackupRoot, pkginstall.LockFileName)
	return pkginstall.New(e.resolver, snapshots, e.history, e.installerOpts...)
}

func (e *engineFactory) Install(ctx context.Context, opts pkginstall.Options, targets pkginstall.Targets) (*pkginstall.Result, error) {
	return e.installer(targets).Install(ctx, opts, targets)
}

func (e *engineFactory) Restore(ctx context.Context, snapshotID string, opts pkginstall.Options, targets pkginstall.Targets) (*pkginstall.Result, error) {
	return e.installer(targets).Restore(ctx, snapshotID, opts, targets)
}

func resolveTargets(opts InstallOptions) (pkginstall.Targets, error) {
	resolver := paths.NewResolver()
	targets := pkginstall.Targets{
		ConfigRoot: opts.ConfigRoot,
		BackupRoot: opts.BackupRoot,
	}
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

func historyOverrides(opts InstallOptions) pkgstate.Overrides {
	return pkgstate.Overrides{
		StateFilePath: opts.HistoryFilePath,
		StateFileName: opts.HistoryFileName,
	}
}

func runInstall(cmd *cobra.Command, opts InstallOptions, deps Deps) error {
	ensureDeps(&deps)

	if strings.TrimSpace(opts.Profile) == "" {
		return errProfileRequired
	}

	location, err := deps.Locate(opts.ConfigPath)
	if err != nil {
		return err
	}
	doc, err := deps.LoadDocument(location.Path)
	if err != nil {
		return err
	}

	targets, err := deps.ResolveTargets(opts)
	if err != nil {
		return err
	}

	if !opts.DryRun {
		preflight := deps.Preflight(validation.TargetConfig{
			ConfigRoot:    targets.ConfigRoot,
			BackupRoot:    targets.BackupRoot,
			StatePath:     opts.HistoryFilePath,
			SkipLockCheck: opts.LockTimeout > 0,
		})
		if !preflight.Passed {
			return fmt.Errorf("preflight checks failed: %s", strings.Join(preflight.Issues, "; "))
		}
	}

	emitter := deps.TelemetryEmitter(cmd.ErrOrStderr())
	engine, err := deps.BuildEngine(doc, opts.Passphrase, emitter)
	if err != nil {
		return err
	}

	logger := newWorkflowLogger(cmd.ErrOrStderr(), opts.Profile)
	logWorkflowStart(logger, "install", map[string]string{"profile": opts.Profile, "source": string(location.Source)})

	result, err := engine.Install(cmd.Context(), pkginstall.Options{
		Profile:     opts.Profile,
		DryRun:      opts.DryRun,
		Force:       opts.Force,
		Strict:      opts.Strict,
		LockTimeout: opts.LockTimeout,
		History:     historyOverrides(opts),
	}, targets)
	if err != nil {
		logWorkflowFailure(logger, "install", resultMetadata(result), err)
		return err
	}
	logWorkflowSuccess(logger, "install", resultMetadata(result))

	return emitResult(cmd, result, opts.Output)
}

func resultMetadata(result *pkginstall.Result) map[string]string {
	if result == nil {
		return map[string]string{}
	}
	metadata := map[string]string{"status": string(result.Status)}
	if result.SnapshotID != "" {
		metadata["snapshot"] = result.SnapshotID
	}
	if result.RestoredSnapshot != "" {
		metadata["restoredSnapshot"] = result.RestoredSnapshot
	}
	return metadata
}

func emitResult(cmd *cobra.Command, result *pkginstall.Result, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		title := titleCaser.String(string(result.Action))
		switch result.Status {
		case pkginstall.StatusSuccess:
			if len(result.PlannedWrites) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s dry run: %d file(s) would be written\n", title, len(result.PlannedWrites))
				for _, rel := range result.PlannedWrites {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", rel)
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s completed successfully: %d file(s) written\n", title, len(result.FilesWritten))
			}
		case pkginstall.StatusPartial:
			fmt.Fprintf(cmd.OutOrStdout(), "%s completed with warnings: %d file(s) written\n", title, len(result.FilesWritten))
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "%s failed\n", title)
		}
		if result.SnapshotID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot: %s\n", result.SnapshotID)
		}
		for _, warning := range result.Warnings {
			fmt.Fprintf(cmd.OutOrStdout(), "Warning: %s\n", warning)
		}
		return nil
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	default:
		return errUnsupportedOutput
	}
}
