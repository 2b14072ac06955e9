package main

import (
	"fmt"
	"os"

	"github.com/roasbeef/p4review/cmd/p4review/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
