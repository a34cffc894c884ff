/*
Package main is the entry point for the shortcut-sage CLI.

Usage:

	shortcut-sage [command]

Available Commands:

	daemon      Run the suggestion daemon
	validate    Validate rules.yaml and shortcuts.yaml
	replay      Replay recorded events through the pipeline
	send        Send an event to a running daemon
	test        Run scenario files through the pipeline
	audit       Summarize recorded telemetry
*/
package main

import (
	"fmt"
	"os"

	"github.com/roach88/shortcut-sage/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
