// Command trajexplore drives a trajectory through its explored parameter
// range from the command line: run, resume and inspect subcommands wired
// to the environment and storage packages.
package main

import (
	"log"
	"os"

	"github.com/trajexplore/trajexplore/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
	os.Exit(cli.ExitCode)
}
