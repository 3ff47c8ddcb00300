package main

import (
	"os"

	"github.com/majorcontext/bastion/cmd/bastion/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
