// Command facets serves and inspects layered product filtering over a shop
// catalog.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/facets/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
