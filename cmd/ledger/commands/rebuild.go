package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
)

// rebuildCmd recomputes stored ledgers from their inputs
var rebuildCmd = &cobra.Command{
	Use:   "rebuild [strategy_id...]",
	Short: "저장된 입력으로 일간/월간 분석 전체 재계산",
	Long: `저장된 일간 입력(손익, 입출금)만으로 모든 일간 행과 월간 요약을
다시 계산해 원자적으로 교체합니다. 정책 변경 후에 사용합니다.

Example:
  go run ./cmd/ledger rebuild 1 2 3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	ids := make([]int64, len(args))
	for i, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid strategy id %q", arg)
		}
		ids[i] = id
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, id := range ids {
		rows, err := a.orch.Rebuild(ctx, id)
		if err != nil {
			PrintError(fmt.Sprintf("strategy %d: %v", id, err))
			return err
		}
		PrintSuccess(fmt.Sprintf("strategy %d: %d rows rebuilt", id, len(rows)))
	}
	return nil
}
