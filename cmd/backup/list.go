package backup

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/cacs/cmd/util"
	"github.com/sidkik/cacs/pkg/backup"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the backup snapshots, most recent first",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if err := runList(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func runList() error {
	cfg, err := util.LoadConfig()
	if err != nil {
		return err
	}

	snapshots, err := backup.NewManager(afero.NewOsFs(), clockwork.NewRealClock(), cfg.BackupDir).List()
	if err != nil {
		return err
	}

	if len(snapshots) == 0 {
		util.Printf("There are no backup snapshots in %s\n", cfg.BackupDir)
		return nil
	}
	return printSnapshots(util.Stdout(), snapshots)
}

func printSnapshots(w io.Writer, snapshots []backup.Snapshot) error {
	out := tabwriter.NewWriter(w, 0, 10, 5, ' ', 0)
	fmt.Fprintln(out, "ID\tTRIGGER\tCREATED\tITEMS")
	for _, snap := range snapshots {
		fmt.Fprintf(out, "%s\t%s\t%s\t%d\n", snap.ID, snap.Trigger,
			snap.CreatedAt.Local().Format(time.RFC822), presentItems(snap))
	}
	return out.Flush()
}

func presentItems(snap backup.Snapshot) int {
	var count int
	for _, item := range snap.Items {
		if item.Present {
			count++
		}
	}
	return count
}
