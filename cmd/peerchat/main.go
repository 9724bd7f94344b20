package main

import (
	"os"

	"github.com/TheusHen/p2pchat/cmd/peerchat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
