package main

import (
	"os"

	"github.com/openride/devicesim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
