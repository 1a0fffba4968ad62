package backup

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sidkik/cacs/cmd/util"
	"github.com/sidkik/cacs/pkg/backup"
	"github.com/sidkik/cacs/pkg/errors"
)

var errAborted = errors.New("restore aborted")

// Mocked out for unit testing.
var (
	promptChoice  = util.PromptChoice
	promptYesOrNo  = util.PromptYesOrNo
)

func newRestoreCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "restore [id]",
		Short: "Restore the local configs from a backup snapshot",
		Long: "Overwrite the local configs with the contents of a backup\n" +
			"snapshot. If no ID is given, the snapshot is chosen interactively.\n" +
			"The current configs are backed up before anything is overwritten.",
		Args: cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			var id string
			if len(args) > 0 {
				id = args[0]
			}
			if err := runRestore(id, yes); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Don't ask for confirmation")
	return cmd
}

func runRestore(id string, yes bool) error {
	cfg, err := util.LoadConfig()
	if err != nil {
		return err
	}

	if id != "" && !yes {
		if err := confirm(id); err != nil {
			return handleAbort(err)
		}
	}

	ctx, cancel := util.Context()
	defer cancel()

	report, err := util.NewOrchestrator(cfg).Restore(ctx, cfg, id, selector(yes))
	if err != nil {
		return handleAbort(errors.WithContext(err, "restore"))
	}

	if report.SafetySnapshot != nil {
		util.Printf("Backed up the current configs to %s\n", report.SafetySnapshot.ID)
	}
	util.Printf("Restored from %s:\n", report.ID)
	for _, name := range report.Restored {
		util.Printf("  %-10s %s\n", "restored", name)
	}
	for _, name := range report.Skipped {
		util.Printf("  %-10s %s\n", "skipped", name)
	}
	return nil
}

// selector asks the user to choose among the snapshots, and to confirm the
// choice unless skipConfirm is set.
func selector(skipConfirm bool) backup.Selector {
	return func(snapshots []backup.Snapshot) (string, error) {
		var options []string
		for _, snap := range snapshots {
			options = append(options, fmt.Sprintf("%s (%s, %s)",
				snap.ID, snap.Trigger, snap.CreatedAt.Local().Format(time.RFC822)))
		}

		choice, err := promptChoice("Which snapshot should be restored?", options)
		if err != nil {
			return "", err
		}

		id := snapshots[choice].ID
		if !skipConfirm {
			if err := confirm(id); err != nil {
				return "", err
			}
		}
		return id, nil
	}
}

func confirm(id string) error {
	ok, err := promptYesOrNo(fmt.Sprintf("Overwrite the local configs with snapshot %s?", id))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	return nil
}

func handleAbort(err error) error {
	if errors.Is(err, errAborted) {
		util.Printf("Aborted. Nothing was restored.\n")
		return nil
	}
	return err
}
