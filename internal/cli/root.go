// Package cli implements the spoof command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/styxit/spoof/internal/config"
	"github.com/styxit/spoof/internal/logging"
)

// Version is set at build time.
var Version = "dev"

// ErrNotConfirmed is returned when the user declines a confirmation prompt.
var ErrNotConfirmed = errors.New("not confirmed")

var (
	cfgFile        string
	verbose        bool
	nonInteractive bool
	jsonOutput     bool
	noProgress     bool
	noColor        bool
	logLevel       string
	logFormat      string

	appConfig *config.Config
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./spoof.yaml or ~/.config/spoof/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "print response details and debug logs")
	flags.BoolVarP(&nonInteractive, "non-interactive", "n", false, "never prompt; assume yes")
	flags.BoolVar(&jsonOutput, "json", false, "write machine-readable JSON output")
	flags.BoolVar(&noProgress, "no-progress", false, "disable progress output")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "log format (console, json)")
}

var rootCmd = &cobra.Command{
	Use:   "spoof",
	Short: "Spoof signed webhook events",
	Long: `spoof fabricates webhook events, signs them with the shared secret the way
GitHub does, and posts them to a destination. Use it to exercise a deploy
pipeline without merging real pull requests.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd.ErrOrStderr())
	},
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, ErrNotConfirmed) {
			printError(rootCmd.ErrOrStderr(), err)
		}
		return 1
	}
	return 0
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return appConfig
}

func initConfig(logOut io.Writer) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return &PreflightError{
			Message:  "failed to load configuration",
			Hint:     err.Error(),
			NextStep: "spoof --config <path> --help",
			Err:      err,
		}
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	} else if verbose {
		cfg.Log.Level = "debug"
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, logOut)

	appConfig = cfg
	return nil
}

// PreflightError is a failure detected before any work starts.
type PreflightError struct {
	Message  string
	Hint     string
	NextStep string
	Err      error
}

func (e *PreflightError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PreflightError) Unwrap() error {
	return e.Err
}

func printError(out io.Writer, err error) {
	var preflight *PreflightError
	if errors.As(err, &preflight) {
		fmt.Fprintln(out, errorText("Error: "+preflight.Message))
		if preflight.Hint != "" {
			fmt.Fprintf(out, "  %s\n", preflight.Hint)
		}
		if preflight.NextStep != "" {
			fmt.Fprintf(out, "  Try: %s\n", preflight.NextStep)
		}
		return
	}
	fmt.Fprintln(out, errorText("Error: "+err.Error()))
}
