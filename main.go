package main

import (
	"os"

	"github.com/halcyonlabs/repgraph/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
