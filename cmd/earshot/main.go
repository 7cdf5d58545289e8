// Package main provides the earshot CLI.
//
// Usage:
//
//	earshot [flags] <command> [args]
//
// Commands:
//
//	process - run a recording through the identification pipeline
//	people  - inspect the enrolled voice database
//	serve   - connect the chat bridge and answer confirmation replies
//	version - print the build version
//
// Configuration:
//
//	earshot reads ~/.earshot/config.yaml; every setting has a default,
//	so the file is optional. Use --config to point elsewhere.
package main

import (
	"fmt"
	"os"

	"github.com/earshothq/earshot/cmd/earshot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
