package backup

import (
	"github.com/spf13/cobra"
)

// New creates a new `backup` command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage the backup snapshots of the local configs",
		Long: "The local configs are backed up before every pull. Snapshots can\n" +
			"also be taken manually, and restored at any time.",
	}
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newCreateCommand())
	cmd.AddCommand(newRestoreCommand())
	return cmd
}
