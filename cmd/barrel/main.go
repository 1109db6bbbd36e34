// Package main provides the barrel command-line tool.
package main

import (
	"os"

	"github.com/leapstack-labs/barrel/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
