package push

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sidkik/cacs/cmd/util"
	"github.com/sidkik/cacs/pkg/errors"
)

// DefaultMessage is the commit message used when none is given.
const DefaultMessage = "Update configs"

// New creates a new `push` command.
func New() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "push [message]",
		Short: "Commit the local configs to the repository",
		Long: "Copy the local items that differ from the repository into it,\n" +
			"then commit and push. Ignored fields are never pushed.",
		Args: cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			msg, err := commitMessage(message, args)
			if err == nil {
				err = run(msg)
			}
			if err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "",
		fmt.Sprintf("The commit message. Defaults to %q.", DefaultMessage))
	return cmd
}

func commitMessage(flag string, args []string) (string, error) {
	switch {
	case flag != "" && len(args) > 0:
		return "", errors.NewFriendlyError(
			"The commit message can be passed as an argument or with --message, but not both.")
	case flag != "":
		return flag, nil
	case len(args) > 0 && args[0] != "":
		return args[0], nil
	default:
		return DefaultMessage, nil
	}
}

func run(message string) error {
	cfg, err := util.LoadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := util.Context()
	defer cancel()

	report, err := util.NewOrchestrator(cfg).Push(ctx, cfg, message)
	if err != nil {
		if errors.Is(err, errors.ErrNothingToPush) {
			return errors.NewFriendlyError("Nothing to push. " +
				"The local configs are identical to the repository.")
		}
		return errors.WithContext(err, "push")
	}

	util.Printf("Pushed to %s:\n", cfg.Repo)
	util.PrintReport(report.Report)
	return nil
}
