package pull

import (
	"github.com/spf13/cobra"

	"github.com/sidkik/cacs/cmd/util"
	"github.com/sidkik/cacs/pkg/errors"
)

// New creates a new `pull` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Overwrite the local configs with the repository versions",
		Long: "Fetch the sync repository and overwrite the local copy of every\n" +
			"item with the repository version. Ignored fields keep their local\n" +
			"values. The local copies are backed up first, and can be restored\n" +
			"with `cacs backup restore`.",
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run() error {
	cfg, err := util.LoadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := util.Context()
	defer cancel()

	report, err := util.NewOrchestrator(cfg).Pull(ctx, cfg)
	if err != nil {
		return errors.WithContext(err, "pull")
	}

	if report.Snapshot != nil {
		util.Printf("Backed up the local configs to %s\n", report.Snapshot.ID)
	}
	util.Printf("Pulled from %s:\n", cfg.Repo)
	util.PrintReport(report.Report)
	return nil
}
