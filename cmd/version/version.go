package version

import (
	"github.com/spf13/cobra"

	"github.com/sidkik/cacs/cmd/util"
	"github.com/sidkik/cacs/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of cacs",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			util.Printf("cacs version: %s\n", version.Version)
		},
	}
}
