package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// registerCmd registers a strategy identity
var registerCmd = &cobra.Command{
	Use:   "register [strategy_id] [name]",
	Short: "전략 등록",
	Long: `일간 데이터를 받을 전략을 등록합니다. 이미 있으면 이름만 바뀝니다.

Example:
  go run ./cmd/ledger register 42 "KOSPI 200 추세추종"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid strategy id %q", args[0])
	}
	name := strings.Join(args[1:], " ")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ledger.RegisterStrategy(cmd.Context(), id, name); err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("strategy %d registered", id))
	return nil
}
