package main

import (
	"os"

	"github.com/agvtools/agv-instances-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
