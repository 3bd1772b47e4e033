// Package main is the entry point for the sda CLI.
package main

import (
	"os"

	"sda-calculator/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
