// Package main provides the entry point for the bridgeport CLI.
package main

import (
	"fmt"
	"os"

	"github.com/bridgeport-dev/bridgeport/cmd/bridgeport/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
