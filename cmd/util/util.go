package util

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/cacs/pkg/config"
	"github.com/sidkik/cacs/pkg/errors"
	"github.com/sidkik/cacs/pkg/repo"
	"github.com/sidkik/cacs/pkg/sync"
)

// Mocked out for unit testing.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	stdin  io.Reader = os.Stdin
	exit             = os.Exit
)

// GlobalOptions are the flags shared by every command.
type GlobalOptions struct {
	ConfigPath string
	Verbose    bool
}

// Options is set by the root command's persistent flags.
var Options GlobalOptions

// HandleFatalError prints the error to the user and exits.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")
	fmt.Fprintln(stderr, errors.GetPrintableMessage(err))
	exit(1)
}

// HandlePanic logs the stack trace of a panic before crashing. It must be
// deferred.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Errorf("Unexpected panic: %v", r)
		panic(r)
	}
}

// LoadConfig loads the sync config according to the global flags.
func LoadConfig() (config.Config, error) {
	return config.Load(Options.ConfigPath)
}

// NewOrchestrator returns an Orchestrator that syncs the local filesystem
// with the repository in cfg.
func NewOrchestrator(cfg config.Config) *sync.Orchestrator {
	return sync.New(repo.NewGitRepository(cfg), afero.NewOsFs(), clockwork.NewRealClock())
}

// Context returns a context that's cancelled when the user interrupts the
// process.
func Context() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// PromptYesOrNo asks the user a yes or no question until they give a valid
// answer.
func PromptYesOrNo(prompt string) (bool, error) {
	reader := bufio.NewReader(stdin)
	for {
		fmt.Fprintf(stdout, "%s [y/n]: ", prompt)
		resp, err := reader.ReadString('\n')
		if err != nil {
			return false, errors.WithContext(err, "read response")
		}

		switch strings.ToLower(strings.TrimSpace(resp)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// PromptChoice asks the user to choose one of the options, and returns its
// index. An empty answer chooses the first option.
func PromptChoice(prompt string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, errors.New("no options to choose from")
	}

	fmt.Fprintln(stdout, prompt+":")
	fmt.Fprintln(stdout)
	for i, option := range options {
		if i == 0 {
			option = fmt.Sprintf("%s (most recent)", option)
		}
		fmt.Fprintf(stdout, "\t%d. %s\n", i+1, option)
	}
	fmt.Fprintln(stdout)

	reader := bufio.NewReader(stdin)
	for {
		fmt.Fprintf(stdout, "Please choose one [1-%d]: ", len(options))
		choiceStr, err := reader.ReadString('\n')
		if err != nil {
			return 0, errors.WithContext(err, "read choice")
		}

		choiceStr = strings.TrimSpace(choiceStr)
		if choiceStr == "" {
			return 0, nil
		}

		choice, err := strconv.Atoi(choiceStr)
		if err != nil || choice < 1 || choice > len(options) {
			// Try again if the input is invalid.
			continue
		}
		return choice - 1, nil
	}
}

// Stdout returns the writer that command output is printed to.
func Stdout() io.Writer {
	return stdout
}

// Printf prints command output.
func Printf(format string, a ...interface{}) {
	fmt.Fprintf(stdout, format, a...)
}

// PrintReport prints the per-item outcome of a sync operation.
func PrintReport(report sync.Report) {
	for _, item := range report.Items {
		line := fmt.Sprintf("  %-10s %s", item.Outcome, item.Item)
		if item.Warning != "" {
			line += fmt.Sprintf(" (%s)", item.Warning)
		}
		fmt.Fprintln(stdout, line)
	}
}
