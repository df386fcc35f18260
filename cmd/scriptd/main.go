package main

import (
	"os"

	"github.com/scriptd/scriptd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
