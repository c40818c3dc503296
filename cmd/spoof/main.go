// Command spoof fabricates signed webhook events and posts them to a destination.
package main

import (
	"os"

	"github.com/styxit/spoof/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
