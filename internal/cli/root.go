package cli

import (
	"github.com/spf13/cobra"

	profilecmd "github.com/dobrovols/ctxctl/cmd/ctxctl/profile"
	secretcmd "github.com/dobrovols/ctxctl/cmd/ctxctl/secrets"
	snapshotcmd "github.com/dobrovols/ctxctl/cmd/ctxctl/snapshot"
)

// NewRootCommand constructs the root ctxctl command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctxctl",
		Short: "ctxctl resolves layered configuration profiles and installs them safely",
	}

	cmd.AddCommand(profilecmd.NewInstallCommand())
	cmd.AddCommand(profilecmd.NewValidateCommand())
	cmd.AddCommand(profilecmd.NewStatusCommand())
	cmd.AddCommand(snapshotcmd.NewRestoreCommand())
	cmd.AddCommand(snapshotcmd.NewSnapshotsCommand())
	cmd.AddCommand(secretcmd.NewEncryptCommand())

	return cmd
}
