package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Sysmetic - 전략 성과 원장",
	Long: `Sysmetic Strategy Ledger CLI

전략별 일간 손익/입출금으로 일간·월간 분석을 계산하고
전체 전략을 대상으로 SM-Score 를 산출합니다.

Usage:
  go run ./cmd/ledger [command]

Examples:
  go run ./cmd/ledger migrate
  go run ./cmd/ledger api
  go run ./cmd/ledger import --strategy 1 daily.csv
  go run ./cmd/ledger replay daily.csv
  go run ./cmd/ledger score`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug log level)")
}
