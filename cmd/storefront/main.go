package main

import (
	"os"

	"github.com/rl1809/mini-storefront/cmd/storefront/commands"
)

func main() {
	// Errors are printed by the printer package with color formatting
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
