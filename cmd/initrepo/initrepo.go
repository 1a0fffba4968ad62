package initrepo

import (
	"github.com/spf13/cobra"

	"github.com/sidkik/cacs/cmd/util"
	"github.com/sidkik/cacs/pkg/errors"
)

// New creates a new `init` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Copy the local configs into the sync repository",
		Long: "Copy every configured item from this machine into the sync\n" +
			"repository, then commit and push. Ignored fields aren't copied.\n" +
			"Nothing is committed if any item fails to copy.",
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

	report, err := util.NewOrchestrator(cfg).Init(ctx, cfg)
	if err != nil {
		return errors.WithContext(err, "init")
	}

	util.Printf("Initialized %s:\n", cfg.Repo)
	util.PrintReport(report.Report)
	return nil
}
