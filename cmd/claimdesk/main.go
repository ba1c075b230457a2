// Command claimdesk serves the claims HTTP API.
package main

import (
	"fmt"
	"os"

	"claimdesk/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
