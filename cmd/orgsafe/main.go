// Package main is the entry point for the orgsafe CLI.
//
// All wiring lives in the cli package: it loads the configuration, builds
// the logger and services once per invocation and hands them to the
// selected command.
package main

import (
	"os"

	"orgsafe/cmd/orgsafe/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
