package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/a1ezzz/wasp-backup/internal/backup"
)

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <archive>",
		Short: "Verify an existing archive's integrity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := backup.Verify(args[0])
			fmt.Fprintln(cmd.OutOrStdout(), result.Status)
			if result.Status != backup.VerifyPass {
				return fmt.Errorf("%s", result.Reason)
			}
			return nil
		},
	}
	return cmd
}
