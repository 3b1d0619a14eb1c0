// Package main is the entry point for the ragjenkins CLI.
// It runs the same components as the server, in-process.
package main

import (
	"os"

	"github.com/agentoven/ragjenkins/cmd/ragjenkins/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
