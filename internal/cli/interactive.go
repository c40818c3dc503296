package cli

import (
	"os"

	"golang.org/x/term"
)

// hasTTY reports whether stdin and stdout are terminals.
var hasTTY = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// IsNonInteractive reports whether prompts should be skipped and defaults used.
func IsNonInteractive() bool {
	if nonInteractive {
		return true
	}
	if _, ok := os.LookupEnv("SPOOF_NON_INTERACTIVE"); ok {
		return true
	}
	return !hasTTY()
}

// IsInteractive reports whether the session can prompt for user input.
func IsInteractive() bool {
	return !IsNonInteractive()
}

// SkipConfirmation reports whether confirmation prompts should be bypassed.
func SkipConfirmation() bool {
	return !IsInteractive() || IsJSONOutput()
}
