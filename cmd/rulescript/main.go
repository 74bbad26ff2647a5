// Command rulescript compiles, runs and traces forward-chaining rule
// packages.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rulescript/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
