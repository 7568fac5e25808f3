package main

import (
	"os"

	"github.com/sumfields/sumfields/internal/cli/commands"
)

func main() {
	// Execute prints the error
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
