package main

import (
	"os"

	"github.com/solatis/stagedoor/cmd/stagedoor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
