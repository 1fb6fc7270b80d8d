package main

import (
	"fmt"
	"os"

	"github.com/tidewell/moorage/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "moorage: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
