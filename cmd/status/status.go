package status

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/buger/goterm"
	"github.com/spf13/cobra"

	"github.com/sidkik/cacs/cmd/util"
	"github.com/sidkik/cacs/pkg/diff"
	"github.com/sidkik/cacs/pkg/errors"
)

// New creates a new `status` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show how the local configs differ from the repository",
		Long: "Compare every item with the sync repository. Neither the local\n" +
			"configs nor the repository are modified.",
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

	results, err := util.NewOrchestrator(cfg).Status(ctx, cfg)
	if err != nil {
		return errors.WithContext(err, "status")
	}
	return printStatus(util.Stdout(), results)
}

func printStatus(w io.Writer, results []diff.Result) error {
	out := tabwriter.NewWriter(w, 0, 10, 5, ' ', 0)
	fmt.Fprintln(out, "ITEM\tSTATUS")
	for _, res := range results {
		fmt.Fprintf(out, "%s\t%s\n", res.Item, colorize(res.Status))
		for _, entry := range res.Entries {
			if entry.Status == diff.Identical {
				continue
			}
			fmt.Fprintf(out, "  %s\t%s\n", entry.Path, colorize(entry.Status))
		}
	}
	return out.Flush()
}

func colorize(status diff.Status) string {
	switch status {
	case diff.Identical:
		return goterm.Color(string(status), goterm.GREEN)
	case diff.BothModified:
		return goterm.Color(string(status), goterm.RED)
	case diff.MissingBoth:
		return string(status)
	default:
		return goterm.Color(string(status), goterm.YELLOW)
	}
}
