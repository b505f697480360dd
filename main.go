package main

import (
	"os"

	"github.com/forgeops/sprintmux/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
