package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/styxit/spoof/internal/config"
	"github.com/styxit/spoof/internal/delivery"
	"github.com/styxit/spoof/internal/signature"
	"github.com/styxit/spoof/internal/spoof"
	"github.com/styxit/spoof/internal/templates"
)

var (
	mergeTemplate string
	mergeDryRun   bool
	mergeYes      bool
)

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVarP(&mergeTemplate, "template", "t", spoof.MergeTemplate, "event template to render")
	mergeCmd.Flags().BoolVar(&mergeDryRun, "dry-run", false, "print the signed payload without sending it")
	mergeCmd.Flags().BoolVarP(&mergeYes, "yes", "y", false, "skip the confirmation prompt")
}

var mergeCmd = &cobra.Command{
	Use:   "merge <owner/name> <from> <target>",
	Short: "Spoof a pull request merge event",
	Long: `Fake a pull request merge event from <from> into <target>.

The event is rendered from the pr-merge template, signed with the configured
secret (X-Hub-Signature: sha1=...) and posted to the destination URL.`,
	Example: `  # Pretend feature-x was merged into main
  spoof merge styxit/deployments feature-x main

  # Show the payload and signature headers without sending
  spoof merge styxit/deployments feature-x main --dry-run

  # Skip the prompt and print the destination's response
  spoof merge styxit/deployments feature-x main --yes -v`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return runMerge(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], args[1], args[2])
	},
}

// MergeResult is the JSON output of `spoof merge`.
type MergeResult struct {
	Template   string            `json:"template"`
	Event      string            `json:"event"`
	DeliveryID string            `json:"delivery_id"`
	URL        string            `json:"url,omitempty"`
	Headers    map[string]string `json:"headers"`
	Payload    string            `json:"payload,omitempty"`
	DryRun     bool              `json:"dry_run"`
	StatusCode int               `json:"status_code,omitempty"`
	Response   string            `json:"response,omitempty"`
}

func runMerge(ctx context.Context, in io.Reader, out, errOut io.Writer, repository, from, target string) error {
	cfg := GetConfig()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := preflightMerge(cfg); err != nil {
		return err
	}

	vars, err := spoof.MergeVariables(repository, from, target)
	if err != nil {
		return err
	}

	if !IsJSONOutput() {
		fmt.Fprintln(out, infoText("About to spoof a pull request merge event with the following settings:"))
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Repository: %s\n", commentText(vars["repoFullName"]))
		fmt.Fprintf(out, "Merge %s into %s.\n", commentText(from), commentText(target))
		fmt.Fprintln(out)
	}

	if !mergeYes && !mergeDryRun && !SkipConfirmation() {
		ok, err := newConfirmer(in, out).Confirm("Is this correct?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "User did not confirm. Quit.")
			return ErrNotConfirmed
		}
	}

	svc, err := newSpoofService(cfg)
	if err != nil {
		return err
	}

	event, err := svc.Prepare(mergeTemplate, vars)
	if err != nil {
		return err
	}

	result := MergeResult{
		Template:   event.Template,
		Event:      event.Name,
		DeliveryID: event.DeliveryID,
		URL:        cfg.DestinationURL,
		Headers:    flattenHeaders(event.Request(cfg.DestinationURL)),
		DryRun:     mergeDryRun,
	}

	if mergeDryRun {
		result.Payload = string(event.Payload)
		if IsJSONOutput() {
			return WriteOutput(out, result)
		}
		printDryRun(out, result, event.Payload)
		return nil
	}

	if !IsJSONOutput() {
		fmt.Fprintln(out, "Spoofing the event...")
	}
	step := startProgress(errOut, "Posting to "+cfg.DestinationURL)
	resp, err := svc.Deliver(ctx, event)
	if err != nil {
		step.Fail(err)
		return err
	}
	step.Done()

	result.StatusCode = resp.StatusCode
	result.Response = string(resp.Body)

	if IsJSONOutput() {
		if err := WriteOutput(out, result); err != nil {
			return err
		}
	} else if verbose {
		fmt.Fprintln(out, "Response:")
		fmt.Fprintf(out, "  Status: %d\n", resp.StatusCode)
		fmt.Fprintf(out, "  Body: %s\n", string(resp.Body))
		fmt.Fprintln(out)
	}

	if !resp.OK() {
		return fmt.Errorf("destination responded with %s", strings.TrimSpace(resp.Status))
	}

	if !IsJSONOutput() {
		fmt.Fprintln(out, "Done.")
	}
	return nil
}

func preflightMerge(cfg *config.Config) error {
	var err error
	if mergeDryRun {
		err = cfg.RequireSecret()
	} else {
		err = cfg.Validate()
	}
	if err == nil {
		return nil
	}
	return &PreflightError{
		Message:  "spoof is not configured",
		Hint:     strings.ReplaceAll(err.Error(), "\n", "\n  "),
		NextStep: "export DESTINATION_URL=https://... SECRET=...",
		Err:      err,
	}
}

func newSpoofService(cfg *config.Config) (*spoof.Service, error) {
	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}

	signer, err := signature.New([]byte(cfg.Secret))
	if err != nil {
		return nil, err
	}

	client := delivery.NewClient(cfg.Timeout)
	return spoof.NewService(registry, signer, client, cfg.DestinationURL), nil
}

func loadRegistry(cfg *config.Config) (*templates.Registry, error) {
	projectDir, err := os.Getwd()
	if err != nil {
		projectDir = ""
	}
	var extra []string
	if cfg != nil && cfg.TemplatesDir != "" {
		extra = append(extra, cfg.TemplatesDir)
	}
	return templates.LoadRegistry(projectDir, extra...)
}

func flattenHeaders(req delivery.Request) map[string]string {
	headers := req.Headers()
	flat := make(map[string]string, len(headers))
	for key := range headers {
		flat[key] = headers.Get(key)
	}
	return flat
}

func printDryRun(out io.Writer, result MergeResult, payload []byte) {
	fmt.Fprintln(out, mutedText("Dry run: nothing was sent."))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "POST %s\n", valueOrDash(result.URL))

	keys := make([]string, 0, len(result.Headers))
	for key := range result.Headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(out, "%s: %s\n", key, result.Headers[key])
	}
	fmt.Fprintln(out)
	_, _ = out.Write(payload)
	if len(payload) > 0 && payload[len(payload)-1] != '\n' {
		fmt.Fprintln(out)
	}
}
