package profile

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func bindCommonFlags(cmd *cobra.Command, opts *InstallOptions) {
	flags := cmd.Flags()
	bindConfigFlags(flags, opts)
	flags.StringVar(&opts.Passphrase, "passphrase", "", "Passphrase for encrypted personal layers")
	flags.StringVar(&opts.ConfigRoot, "config-root", "", "Destination directory for installed configuration")
	flags.StringVar(&opts.BackupRoot, "backup-root", "", "Directory where pre-write snapshots are stored")
	flags.StringVar(&opts.HistoryFilePath, "history-file", "", "Absolute path for the installation history file")
	flags.StringVar(&opts.HistoryFileName, "history-file-name", "", "Custom history file name within the state directory")
	flags.DurationVar(&opts.LockTimeout, "lock-timeout", 0, "How long to wait for a concurrent install to finish")
	flags.StringVar(&opts.Output, "output", "text", "Output format: text or json")
}

func bindConfigFlags(flags *pflag.FlagSet, opts *InstallOptions) {
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the declarative configuration file")
}
