package main

import (
	"os"

	"github.com/MrARwho/project-uvm/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
