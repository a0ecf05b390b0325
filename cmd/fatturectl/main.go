// Command fatturectl reads the invoicing API from a terminal: sign in,
// print the dashboard, list records and export invoices.
package main

import (
	"fmt"
	"os"

	"fatture/internal/cli"
)

func main() {
	cli.LoadEnvFile()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
