package main

import (
	"os"

	"github.com/teranos/strata/cmd/strata/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
