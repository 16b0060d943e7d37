package main

import (
	"os"

	"github.com/loadshift/loadshift/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
