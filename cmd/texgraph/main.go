// Command texgraph runs, renders and serves live texture graphs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/texgraph/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
