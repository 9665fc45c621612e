// Package main provides the qconv CLI.
package main

import (
	"os"
)

const version = "v0.0.1-dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
