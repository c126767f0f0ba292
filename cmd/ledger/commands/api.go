package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/sysmetic/backend/internal/api"
	"github.com/wonny/sysmetic/backend/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET    /health                               - Health check
  GET    /ws                                   - 원장 이벤트 스트림 (?strategy=1,2)
  POST   /api/strategies                       - 전략 등록
  POST   /api/strategies/{id}/daily            - 다음 거래일 입력
  PUT    /api/strategies/{id}/daily/{date}     - 과거 입력 정정 (이후 재계산)
  DELETE /api/strategies/{id}/daily/latest     - 최근 입력 삭제
  POST   /api/strategies/{id}/import           - CSV 일괄 입력
  POST   /api/strategies/{id}/rebuild          - 전체 재계산
  GET    /api/strategies/{id}/ledger           - 일간 분석 (?from=&to=)
  GET    /api/strategies/{id}/ledger/latest    - 최신 일간 분석
  GET    /api/strategies/{id}/monthly          - 월간 분석
  GET    /api/strategies/{id}/export.csv       - CSV 내보내기 (?kind=monthly)
  GET    /api/scores                           - SM-Score 점수판
  POST   /api/scores/run                       - SM-Score 즉시 재계산

Example:
  go run ./cmd/ledger api
  go run ./cmd/ledger api --port 8090 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort       string
	withScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT 환경변수)")
	apiCmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "SM-Score 야간 배치를 같은 프로세스에서 실행")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	if withScheduler {
		sched, err := a.newScheduler()
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	router := api.NewRouter(
		handlers.NewLedgerHandler(a.orch, a.ledger, a.ledger, a.cal, a.cache, a.limit, a.log),
		handlers.NewScoreHandler(a.scores, a.scorer, a.cache, a.limit, a.log),
		a.hub,
		a.log,
	)
	server := api.New(a.cfg, a.log, router)

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	if err := server.Run(ctx); err != nil {
		return err
	}

	a.log.Info("Server stopped")
	return nil
}
