// Package main is the entry point for the pawwatch alert service.
package main

import (
	"os"

	"github.com/good-yellow-bee/pawwatch/cmd/pawwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
