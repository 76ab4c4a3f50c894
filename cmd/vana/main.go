// Package main provides the entry point for the vana CLI.
package main

import (
	"os"

	"github.com/NickB03/vana/cmd/vana/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
