// Command paysim streams synthetic mobile-money transactions.
package main

import (
	"fmt"
	"os"

	"github.com/paysim/paysim/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	cmd.SilenceErrors = true
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
