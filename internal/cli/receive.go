package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/styxit/spoof/internal/logging"
	"github.com/styxit/spoof/internal/receiver"
)

var (
	receiveListen string
	receivePath   string
)

func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().StringVar(&receiveListen, "listen", "", "address to listen on (default from config, 127.0.0.1:8090)")
	receiveCmd.Flags().StringVar(&receivePath, "path", "", "route to accept deliveries on (default /webhook)")
}

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Run a local endpoint that verifies spoofed deliveries",
	Long: `Run a local webhook endpoint that checks X-Hub-Signature-256 or
X-Hub-Signature against the configured secret, the same way a real
destination does. Point DESTINATION_URL at it to test a spoof end to end.`,
	Example: `  # Terminal 1
  SECRET=testsecret spoof receive

  # Terminal 2
  SECRET=testsecret DESTINATION_URL=http://127.0.0.1:8090/webhook spoof merge styxit/deployments feature-x main -y`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return &PreflightError{Message: "configuration not loaded"}
		}
		if err := cfg.RequireSecret(); err != nil {
			return &PreflightError{
				Message:  "receiver needs the shared secret",
				Hint:     err.Error(),
				NextStep: "SECRET=... spoof receive",
				Err:      err,
			}
		}

		listen := cfg.Receive.Listen
		if receiveListen != "" {
			listen = receiveListen
		}
		path := cfg.Receive.Path
		if receivePath != "" {
			path = receivePath
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		out := cmd.OutOrStdout()
		srv := receiver.New(receiver.Config{
			Listen: listen,
			Path:   path,
			Secret: []byte(cfg.Secret),
		}, logging.Component("receiver"), deliveryPrinter(out))

		if !IsJSONOutput() {
			fmt.Fprintf(out, "Listening on http://%s%s (Ctrl+C to stop)\n", listen, path)
		}
		return srv.Start(ctx)
	},
}

// ReceivedDelivery is the JSON form of a verified delivery.
type ReceivedDelivery struct {
	Event      string `json:"event"`
	DeliveryID string `json:"delivery_id"`
	Signature  string `json:"signature"`
	Bytes      int    `json:"bytes"`
	Payload    string `json:"payload,omitempty"`
}

func deliveryPrinter(out io.Writer) func(receiver.Delivery) {
	var mu sync.Mutex
	return func(d receiver.Delivery) {
		mu.Lock()
		defer mu.Unlock()

		if IsJSONOutput() {
			_ = WriteOutput(out, ReceivedDelivery{
				Event:      d.Event,
				DeliveryID: d.DeliveryID,
				Signature:  d.Header,
				Bytes:      len(d.Payload),
				Payload:    string(d.Payload),
			})
			return
		}

		fmt.Fprintf(out, "%s %s delivery %s (%d bytes)\n",
			infoText("verified"),
			commentText(valueOrDash(d.Event)),
			valueOrDash(d.DeliveryID),
			len(d.Payload),
		)
		if verbose {
			fmt.Fprintf(out, "%s\n", d.Payload)
		}
	}
}
