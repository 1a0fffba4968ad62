package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/cacs/cmd/backup"
	"github.com/sidkik/cacs/cmd/initrepo"
	"github.com/sidkik/cacs/cmd/pull"
	"github.com/sidkik/cacs/cmd/push"
	"github.com/sidkik/cacs/cmd/status"
	"github.com/sidkik/cacs/cmd/util"
	"github.com/sidkik/cacs/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "CACS_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:   "cacs",
		Short: "Sync coding assistant configs through a git repository",
		Long: "cacs keeps the configuration files of coding assistants in sync\n" +
			"between machines, using a git repository as the source of truth.\n" +
			"Local files are backed up before they're overwritten.",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if util.Options.Verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&util.Options.ConfigPath, "config", "c", "",
		"Path to the sync config. Defaults to $CACS_CONFIG, "+
			"~/.config/cacs/sync_config.yaml, or ./sync_config.yaml.")
	rootCmd.PersistentFlags().BoolVarP(&util.Options.Verbose, "verbose", "v", false,
		"Log debug output")

	rootCmd.AddCommand(
		backup.New(),
		initrepo.New(),
		pull.New(),
		push.New(),
		status.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
