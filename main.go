package main

import (
	"os"

	"github.com/prismd/prismd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
