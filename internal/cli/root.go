// Package cli wires the wasp-backup subcommands (create, program-backup,
// check) on top of spf13/cobra, parsing flags into internal/backup's
// CreateOptions and reporting results through a zerolog logger.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

// Execute builds and runs the root command.
func Execute() error {
	root := &cobra.Command{
		Use:           "wasp-backup",
		Short:         "Create and verify rate-limited, optionally encrypted backup archives",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML file supplying flag defaults")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newCreateCommand())
	root.AddCommand(newProgramBackupCommand())
	root.AddCommand(newCheckCommand())

	return root.Execute()
}
