package main

import (
	"os"

	"github.com/undergrace/mbc/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
