package main

import (
	"os"

	"github.com/goliatone/go-tplc/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
