package main

import (
	"os"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
