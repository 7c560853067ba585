package main

import (
	"os"

	"github.com/alqatri/tbilltracker/cmd/tbill/commands"
)

// main is the entry point for the tbill CLI: go run ./cmd/tbill [command]
func main() {
	os.Exit(commands.Execute())
}
