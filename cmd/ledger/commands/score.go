package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/sysmetic/backend/internal/contracts"
)

// scoreCmd runs one SM-Score pass
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "SM-Score 즉시 산출",
	Long: `모든 대상 전략의 최신 KP-Ratio 로 SM-Score 를 한 번 산출합니다.

운용 일수가 SCORE_MIN_OPERATION_DAYS 미만인 전략은 제외됩니다.
모집단을 모두 읽지 못하면 아무것도 저장하지 않습니다.

Example:
  go run ./cmd/ledger score`,
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Scoring.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Scoring.Timeout)
		defer cancel()
	}

	board, err := a.scorer.Run(ctx)
	if err != nil {
		return fmt.Errorf("scoring pass: %w", err)
	}

	printScoreBoard(board)
	return nil
}

func printScoreBoard(board *contracts.ScoreBoard) {
	PrintHeader("SM-Score")
	PrintKeyValue("Computed", board.ComputedAt.Format("2006-01-02 15:04:05"), 10)
	PrintKeyValue("Strategies", strconv.Itoa(len(board.Scores)), 10)
	PrintKeyValue("Mean", strconv.FormatFloat(board.Mean, 'f', 6, 64), 10)
	PrintKeyValue("StdDev", strconv.FormatFloat(board.StdDev, 'f', 6, 64), 10)
	fmt.Println()

	widths := []int{10, 12, 14, 10, 8}
	PrintTableHeader([]string{"Strategy", "Date", "KP-Ratio", "Z", "Score"}, widths)
	for _, s := range board.Scores {
		PrintTableRow([]string{
			strconv.FormatInt(s.StrategyID, 10),
			s.Date.Format(contracts.DateLayout),
			s.KPRatio.String(),
			strconv.FormatFloat(s.ZScore, 'f', 3, 64),
			s.Score.StringFixed(2),
		}, widths)
	}
}
