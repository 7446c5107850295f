package main

import (
	"os"

	"github.com/identity-guardian/guardian/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
