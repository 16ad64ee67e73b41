package profile

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dobrovols/ctxctl/internal/config"
	"github.com/dobrovols/ctxctl/pkg/fragment"
	pkgprofile "github.com/dobrovols/ctxctl/pkg/profile"
	"github.com/dobrovols/ctxctl/pkg/validate"
)

// ValidateOptions captures CLI inputs for the validate command.
type ValidateOptions struct {
	Profile    string
	ConfigPath string
	Passphrase string
	Strict     bool
	Output     string
}

// NewValidateCommand constructs the `ctxctl validate` command.
func NewValidateCommand() *cobra.Command {
	opts := ValidateOptions{}
	cmd := &cobra.Command{
		Use:   "validate [PROFILE]",
		Short: "Validate the configuration, catalog, and optionally one profile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if len(args) == 1 {
				opts.Profile = args[0]
			}
			return runValidate(cmd, opts, Deps{})
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the declarative configuration file")
	cmd.Flags().StringVar(&opts.Passphrase, "passphrase", "", "Passphrase for encrypted personal layers")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Treat validation warnings as failures")
	cmd.Flags().StringVar(&opts.Output, "output", "text", "Output format: text or json")

	return cmd
}

// RunValidateForTest executes the validate flow with injected dependencies.
func RunValidateForTest(cmd *cobra.Command, opts ValidateOptions, deps Deps) error {
	cmd.SilenceUsage = true
	return runValidate(cmd, opts, deps)
}

func runValidate(cmd *cobra.Command, opts ValidateOptions, deps Deps) error {
	ensureDeps(&deps)

	location, err := deps.Locate(opts.ConfigPath)
	if err != nil {
		return err
	}
	doc, err := deps.LoadDocument(location.Path)
	if err != nil {
		return err
	}

	issues := validate.Catalog(doc.Catalog)
	issues = append(issues, validate.ProfileSet(doc.Profiles, doc.Catalog)...)

	var summary string
	if opts.Profile != "" {
		resolution, resolveIssues, err := validateProfile(doc, opts)
		if err != nil {
			return err
		}
		issues = append(issues, resolveIssues...)
		summary, err = pkgprofile.FormatSummary(resolution, opts.Output)
		if err != nil {
			return err
		}
	}

	if err := emitIssues(cmd, issues, summary, opts.Output); err != nil {
		return err
	}
	return validate.Escalate(issues, opts.Strict)
}

func validateProfile(doc *config.Document, opts ValidateOptions) (*pkgprofile.Resolution, []validate.Issue, error) {
	loader := func(path, layer string) (*fragment.Fragment, error) {
		return fragment.Load(path, layer, fragment.LoadOptions{Passphrase: opts.Passphrase})
	}
	resolver := pkgprofile.NewResolver(doc.Profiles, doc.Catalog, doc.RootDir, loader)
	resolution, err := resolver.Resolve(opts.Profile)
	if err != nil {
		return nil, nil, err
	}

	var schemaIssues []validate.Issue
	if doc.SchemaPath != "" {
		schema, err := validate.LoadSchema(doc.SchemaPath)
		if err != nil {
			return nil, nil, err
		}
		schemaIssues = validate.Merged(resolution.Merged, schema)
	}
	return resolution, schemaIssues, nil
}

func emitIssues(cmd *cobra.Command, issues []validate.Issue, summary, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		if len(issues) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Validation passed")
		}
		for _, issue := range issues {
			fmt.Fprintln(cmd.OutOrStdout(), issue.String())
		}
		if summary != "" {
			fmt.Fprintln(cmd.OutOrStdout(), summary)
		}
		return nil
	case "json":
		payload := map[string]any{"issues": issues}
		if summary != "" {
			payload["resolution"] = json.RawMessage(summary)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	default:
		return errUnsupportedOutput
	}
}
