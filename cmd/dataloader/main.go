package main

import (
	"os"

	"github.com/asaidimu/go-dataloader/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
