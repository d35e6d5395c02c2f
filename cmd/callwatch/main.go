// Package main is the entry point for the callwatch binary.
package main

import (
	"os"

	"github.com/good-yellow-bee/callwatch/cmd/callwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
