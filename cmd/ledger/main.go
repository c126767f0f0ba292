package main

import (
	"os"

	"github.com/wonny/sysmetic/backend/cmd/ledger/commands"
)

// main is the entry point for the ledger CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/ledger [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
