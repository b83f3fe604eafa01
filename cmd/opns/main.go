package main

import (
	"os"

	"opns/cmd/opns/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
