// Package main provides the entry point for the uepd CLI.
package main

import (
	"fmt"
	"os"

	"github.com/uep-dev/uepd/cmd/uepd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
