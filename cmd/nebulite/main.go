// Command nebulite compiles, runs and inspects rule-driven document worlds.
package main

import (
	"os"

	"github.com/lbastigk/Nebulite-sub003/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	os.Exit(cli.GetExitCode(err))
}
