// Package main is the entry point for the claimgraph CLI.
//
// Usage:
//
//	claimgraph [flags] <command> [args]
//
// Commands:
//
//	run       - load all vertices, then link all edges
//	vertices  - load vertices only
//	edges     - link edges only
//	flatten   - print the flattened view of one claim
//	serve     - serve the read path over HTTP
//	version   - show version information
package main

import (
	"fmt"
	"os"

	"github.com/agenthands/claimgraph/cmd/claimgraph/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
