// Package main provides the entry point for the medrank CLI.
package main

import (
	"os"

	"github.com/caresearch/medrank/cmd/medrank/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
