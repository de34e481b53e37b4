// Package main provides the entry point for the agentserver binary.
package main

import (
	"fmt"
	"os"

	"github.com/agentserver/agentserver/cmd/agentserver/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
