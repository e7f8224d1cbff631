package main

import (
	"os"

	"github.com/crossrail/fivebells/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
