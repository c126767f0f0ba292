package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/sysmetic/backend/internal/calendar"
	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/internal/ledger"
	"github.com/wonny/sysmetic/backend/internal/orchestrator"
	"github.com/wonny/sysmetic/backend/internal/storage/memory"
	"github.com/wonny/sysmetic/backend/internal/transfer"
	"github.com/wonny/sysmetic/backend/pkg/logger"
)

// replayCmd folds an input feed in memory and prints the computed ledger
var replayCmd = &cobra.Command{
	Use:   "replay [file]",
	Short: "입력 CSV 를 메모리에서 계산해 CSV 로 출력 (DB 불필요)",
	Long: `입력 CSV 를 DB 없이 메모리 원장에서 계산하고
일간 또는 월간 분석을 CSV 로 출력합니다. 정책 비교나 검증에 사용합니다.

Example:
  go run ./cmd/ledger replay daily.csv
  go run ./cmd/ledger replay --kind monthly --principal-policy ratio-adjusted daily.csv
  go run ./cmd/ledger replay --holidays 2025-01-28,2025-01-29 --out ledger.csv daily.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var (
	replayStrategy  int64
	replayKind      string
	replayOut       string
	replayPrincipal string
	replayDrawdown  string
	replayHolidays  string
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().Int64Var(&replayStrategy, "strategy", 1, "strategyId 열이 없을 때 사용할 전략 ID")
	replayCmd.Flags().StringVar(&replayKind, "kind", "ledger", "출력 종류 (ledger|monthly)")
	replayCmd.Flags().StringVar(&replayOut, "out", "", "출력 파일 (기본: 표준 출력)")
	replayCmd.Flags().StringVar(&replayPrincipal, "principal-policy", ledger.PrincipalAdditive, "원금 정책 (additive|ratio-adjusted)")
	replayCmd.Flags().StringVar(&replayDrawdown, "drawdown-policy", ledger.DrawdownPeakRelative, "낙폭 정책 (peak-relative|clamped)")
	replayCmd.Flags().StringVar(&replayHolidays, "holidays", "", "휴장일 목록 (YYYY-MM-DD,...)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	inputs, err := readInputFile(args[0], replayStrategy)
	if err != nil {
		return err
	}

	principal, err := ledger.NewPrincipalPolicy(replayPrincipal)
	if err != nil {
		return err
	}
	drawdown, err := ledger.NewDrawdownPolicy(replayDrawdown)
	if err != nil {
		return err
	}

	var holidays []string
	for _, h := range strings.Split(replayHolidays, ",") {
		if h = strings.TrimSpace(h); h != "" {
			holidays = append(holidays, h)
		}
	}
	cal, err := calendar.New(holidays, "UTC")
	if err != nil {
		return err
	}

	log := logger.NewWithWriter(os.Stderr, "warn")
	if verbose {
		log = logger.NewWithWriter(os.Stderr, "debug")
	}

	store := memory.NewLedgerStore()
	ids := strategyIDs(inputs)
	for _, id := range ids {
		if err := store.RegisterStrategy(ctx, id, "replay"); err != nil {
			return err
		}
	}

	orch := orchestrator.New(store, ledger.NewEngine(principal, drawdown), cal, log)
	for _, r := range orch.AppendBatch(ctx, inputs) {
		if r.Err != nil {
			return fmt.Errorf("strategy %d stopped after %d rows: %w", r.StrategyID, r.Appended, r.Err)
		}
	}

	var w io.Writer = os.Stdout
	if replayOut != "" {
		f, err := os.Create(replayOut)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	return writeReplay(ctx, w, store, ids, replayKind)
}

func writeReplay(ctx context.Context, w io.Writer, store *memory.LedgerStore, ids []int64, kind string) error {
	switch kind {
	case "ledger":
		var all []*contracts.LedgerRow
		for _, id := range ids {
			rows, err := store.ListRows(ctx, id)
			if err != nil {
				return err
			}
			all = append(all, rows...)
		}
		return transfer.WriteLedger(w, all)
	case "monthly":
		var all []*contracts.MonthlySummaryRow
		for _, id := range ids {
			months, err := store.ListMonthlySummaries(ctx, id)
			if err != nil {
				return err
			}
			all = append(all, months...)
		}
		return transfer.WriteMonthly(w, all)
	default:
		return fmt.Errorf("unknown kind %q (ledger|monthly)", kind)
	}
}
