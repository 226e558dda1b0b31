package main

import (
	"os"

	"github.com/psantana5/euclid/cmd/euclid/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
