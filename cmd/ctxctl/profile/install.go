package profile

import "github.com/spf13/cobra"

// NewInstallCommand constructs the `ctxctl install` command.
func NewInstallCommand() *cobra.Command {
	opts := InstallOptions{}
	cmd := &cobra.Command{
		Use:   "install PROFILE",
		Short: "Resolve a profile and install the merged configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			opts.Profile = args[0]
			return runInstall(cmd, opts, Deps{})
		},
	}

	bindCommonFlags(cmd, &opts)
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report planned writes without touching the config root")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Install into a config root that was not created by ctxctl")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Treat validation warnings as failures")

	return cmd
}

// RunInstallForTest executes the install flow with injected dependencies.
func RunInstallForTest(cmd *cobra.Command, opts InstallOptions, deps Deps) error {
	cmd.SilenceUsage = true
	return runInstall(cmd, opts, deps)
}
