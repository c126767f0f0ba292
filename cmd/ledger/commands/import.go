package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/internal/orchestrator"
	"github.com/wonny/sysmetic/backend/internal/transfer"
)

// importCmd appends an input feed CSV to the stored ledgers
var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "일간 입력 CSV 일괄 등록",
	Long: `일간 입력 CSV 를 읽어 전략별로 날짜 순서대로 등록합니다.

CSV 형식:
  date,dailyProfitLoss,depositWithdrawal[,strategyId]

strategyId 열이 없으면 --strategy 값을 사용합니다.
파일 대신 - 를 주면 표준 입력을 읽습니다.
한 전략에서 오류가 나면 그 전략만 중단되고 나머지는 계속 진행합니다.

Example:
  go run ./cmd/ledger import --strategy 1 daily.csv
  go run ./cmd/ledger import --register all-strategies.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	importStrategy int64
	importRegister bool
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Int64Var(&importStrategy, "strategy", 0, "strategyId 열이 없을 때 사용할 전략 ID")
	importCmd.Flags().BoolVar(&importRegister, "register", false, "등록되지 않은 전략을 자동 등록")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputs, err := readInputFile(args[0], importStrategy)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now()
	for _, in := range inputs {
		if err := a.cal.Validate(in.Date, now); err != nil {
			return fmt.Errorf("strategy %d: %w", in.StrategyID, err)
		}
	}

	if importRegister {
		for _, id := range strategyIDs(inputs) {
			if err := a.ledger.RegisterStrategy(ctx, id, ""); err != nil {
				return fmt.Errorf("register strategy %d: %w", id, err)
			}
		}
	}

	start := time.Now()
	results := a.orch.AppendBatch(ctx, inputs)
	return printBatchResults(results, time.Since(start))
}

func readInputFile(path string, strategyID int64) ([]contracts.DailyInput, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input feed: %w", err)
		}
		defer f.Close()
		r = f
	}

	inputs, err := transfer.ReadInputs(r, strategyID)
	if err != nil {
		return nil, fmt.Errorf("read input feed %s: %w", path, err)
	}
	return inputs, nil
}

func strategyIDs(inputs []contracts.DailyInput) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, in := range inputs {
		if _, ok := seen[in.StrategyID]; !ok {
			seen[in.StrategyID] = struct{}{}
			ids = append(ids, in.StrategyID)
		}
	}
	return ids
}

func printBatchResults(results []orchestrator.BatchResult, elapsed time.Duration) error {
	PrintHeader("Import")

	widths := []int{10, 10, 50}
	PrintTableHeader([]string{"Strategy", "Appended", "Error"}, widths)

	failed := 0
	for _, r := range results {
		PrintTableRow([]string{strconv.FormatInt(r.StrategyID, 10), strconv.Itoa(r.Appended), r.Error}, widths)
		if r.Err != nil {
			failed++
		}
	}
	fmt.Println()

	if failed > 0 {
		PrintError(fmt.Sprintf("%d of %d strategies stopped early (%.2fs)", failed, len(results), elapsed.Seconds()))
		return fmt.Errorf("%d strategies failed", failed)
	}
	PrintSuccess(fmt.Sprintf("%d strategies imported in %.2fs", len(results), elapsed.Seconds()))
	return nil
}
