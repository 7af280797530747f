package main

import (
	"os"

	"github.com/Meesho/BharatMLStack/choreographer/pkg/logger"
)

func main() {
	logger.Init()
	if err := newCLI(os.Stdout).execute(os.Args[1:], os.Stderr); err != nil {
		os.Exit(1)
	}
}
