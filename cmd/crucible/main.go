// File: cmd/crucible/main.go
package main

import (
	"github.com/xkilldash9x/crucible/cmd"
	"github.com/xkilldash9x/crucible/internal/observability"
)

// main is the entry point for the Crucible CLI application.
func main() {
	// Flush any buffered log entries on the way out.
	defer observability.Sync()

	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
