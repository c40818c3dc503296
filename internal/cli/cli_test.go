package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/styxit/spoof/internal/spoof"
)

// setupCLI isolates the global command state and returns stdout and stderr buffers.
func setupCLI(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{
		"SPOOF_DESTINATION_URL", "DESTINATION_URL",
		"SPOOF_SECRET", "SECRET",
		"SPOOF_TEMPLATES_DIR", "SPOOF_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	for _, key := range []string{"SPOOF_NON_INTERACTIVE", "NO_COLOR"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfgFile = ""
	verbose = false
	nonInteractive = false
	jsonOutput = false
	noProgress = true
	noColor = true
	logLevel = ""
	logFormat = ""
	appConfig = nil
	mergeTemplate = spoof.MergeTemplate
	mergeDryRun = false
	mergeYes = false
	templatesTags = nil
	receiveListen = ""
	receivePath = ""

	originalTTY := hasTTY
	originalConfirmer := newConfirmer
	hasTTY = func() bool { return false }
	t.Cleanup(func() {
		hasTTY = originalTTY
		newConfirmer = originalConfirmer
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(""))
	resetContexts(rootCmd)
	return &out, &errOut
}

func runCLI(t *testing.T, in io.Reader, args ...string) error {
	t.Helper()
	if in != nil {
		rootCmd.SetIn(in)
	}
	return runCLIContext(t, context.Background(), args...)
}

// runCLIContext executes rootCmd with ctx. Cobra only hands the root context
// to subcommands that have none, so contexts left by earlier runs are cleared.
func runCLIContext(t *testing.T, ctx context.Context, args ...string) error {
	t.Helper()
	resetContexts(rootCmd)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func resetContexts(cmd *cobra.Command) {
	cmd.SetContext(nil)
	for _, child := range cmd.Commands() {
		resetContexts(child)
	}
}
