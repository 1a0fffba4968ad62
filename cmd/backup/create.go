package backup

import (
	"github.com/spf13/cobra"

	"github.com/sidkik/cacs/cmd/util"
	"github.com/sidkik/cacs/pkg/errors"
)

func newCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Take a backup snapshot of the local configs",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if err := runCreate(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func runCreate() error {
	cfg, err := util.LoadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := util.Context()
	defer cancel()

	snap, err := util.NewOrchestrator(cfg).Backup(ctx, cfg)
	if err != nil {
		return errors.WithContext(err, "backup")
	}

	if snap == nil {
		util.Printf("None of the configured items exist locally. Nothing to back up.\n")
		return nil
	}
	util.Printf("Created backup snapshot %s\n", snap.ID)
	return nil
}
