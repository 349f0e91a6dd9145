package main

import (
	"os"

	"remoteprompt-server/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		os.Exit(1)
	}
}
