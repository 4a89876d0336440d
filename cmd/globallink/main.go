package main

import (
	"os"

	"github.com/wonny/globallink/cmd/globallink/commands"
)

// main is the entry point for the globallink CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/globallink [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
