package main

import (
	"os"

	"github.com/0xcro3dile/faqroute/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
