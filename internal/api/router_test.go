package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/sysmetic/backend/internal/api/handlers"
	"github.com/wonny/sysmetic/backend/internal/calendar"
	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/internal/ledger"
	"github.com/wonny/sysmetic/backend/internal/orchestrator"
	"github.com/wonny/sysmetic/backend/internal/realtime"
	"github.com/wonny/sysmetic/backend/internal/scoring"
	"github.com/wonny/sysmetic/backend/internal/storage/memory"
	"github.com/wonny/sysmetic/backend/pkg/config"
	"github.com/wonny/sysmetic/backend/pkg/logger"
	"github.com/wonny/sysmetic/backend/pkg/redis"
)

func newTestRouter(t *testing.T) (http.Handler, *memory.LedgerStore) {
	t.Helper()
	log := logger.NewNop()

	// Redis 비활성: 캐시/레이트 리밋은 no-op
	client, err := redis.New(&config.Config{})
	require.NoError(t, err)
	cache := redis.NewCache(client, "test")
	limiter := redis.NewRateLimiter(client, "test")

	store := memory.NewLedgerStore()
	cal := calendar.Weekdays()
	hub := realtime.NewHub(log)
	t.Cleanup(hub.Close)
	sinks := contracts.EventSinks{hub, handlers.NewCacheInvalidator(cache, log)}

	orch := orchestrator.New(store, ledger.NewEngine(nil, nil), cal, log)
	orch.SetEventSink(sinks)
	scorer := scoring.NewBatchScorer(store, 1, log)
	scorer.SetEventSink(sinks)

	router := NewRouter(
		handlers.NewLedgerHandler(orch, store, store, cal, cache, limiter, log),
		handlers.NewScoreHandler(store, scorer, cache, limiter, log),
		hub,
		log,
	)
	return router, store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func daily(date, pl, dw string) string {
	return `{"date":"` + date + `","dailyProfitLoss":"` + pl + `","depositWithdrawal":"` + dw + `"}`
}

func register(t *testing.T, h http.Handler, id string) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/strategies", `{"id":`+id+`,"name":"alpha"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestLedgerLifecycle(t *testing.T) {
	h, _ := newTestRouter(t)
	register(t, h, "7")

	rec := do(t, h, http.MethodPost, "/api/strategies/7/daily", daily("2025-01-02", "0", "1000"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/strategies/7/daily", daily("2025-01-03", "100", "0"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	row := decode[contracts.LedgerRow](t, rec)
	assert.True(t, decimal.NewFromInt(1100).Equal(row.Balance), "balance %s", row.Balance)

	rec = do(t, h, http.MethodGet, "/api/strategies/7/ledger", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode[map[string]any](t, rec)["count"])

	rec = do(t, h, http.MethodGet, "/api/strategies/7/ledger?from=2025-01-03", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["count"])

	rec = do(t, h, http.MethodGet, "/api/strategies/7/monthly", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["count"])

	// 첫날 입금 정정 → 이후 행 재계산
	rec = do(t, h, http.MethodPut, "/api/strategies/7/daily/2025-01-02", `{"dailyProfitLoss":"0","depositWithdrawal":"2000"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), decode[map[string]any](t, rec)["replayed"])

	rec = do(t, h, http.MethodGet, "/api/strategies/7/ledger/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	latest := decode[contracts.LedgerRow](t, rec)
	assert.True(t, decimal.NewFromInt(2100).Equal(latest.Balance), "balance %s", latest.Balance)

	rec = do(t, h, http.MethodGet, "/api/strategies/7/export.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "strategyId,date"), lines[0])

	rec = do(t, h, http.MethodGet, "/api/strategies/7/export.csv?kind=monthly", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, strings.Split(strings.TrimSpace(rec.Body.String()), "\n"), 2)

	rec = do(t, h, http.MethodDelete, "/api/strategies/7/daily/latest", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2025-01-03", decode[contracts.LedgerRow](t, rec).Date.Format(contracts.DateLayout))

	rec = do(t, h, http.MethodGet, "/api/strategies/7/ledger/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-01-02", decode[contracts.LedgerRow](t, rec).Date.Format(contracts.DateLayout))
}

func TestAppendRejections(t *testing.T) {
	h, _ := newTestRouter(t)
	register(t, h, "1")
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/strategies/1/daily", daily("2025-01-02", "0", "1000")).Code)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"duplicate", "/api/strategies/1/daily", daily("2025-01-02", "5", "0"), http.StatusConflict},
		{"gap", "/api/strategies/1/daily", daily("2025-01-06", "5", "0"), http.StatusUnprocessableEntity},
		{"weekend", "/api/strategies/1/daily", daily("2025-01-04", "5", "0"), http.StatusBadRequest},
		{"future", "/api/strategies/1/daily", daily("2999-01-02", "5", "0"), http.StatusBadRequest},
		{"bad date", "/api/strategies/1/daily", daily("01/03/2025", "5", "0"), http.StatusBadRequest},
		{"bad body", "/api/strategies/1/daily", `{`, http.StatusBadRequest},
		{"unknown strategy", "/api/strategies/99/daily", daily("2025-01-02", "0", "1000"), http.StatusNotFound},
		{"correct missing day", "/api/strategies/1/daily/2025-01-03", daily("", "1", "0"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if strings.Contains(tt.path, "/daily/") {
				method = http.MethodPut
			}
			rec := do(t, h, method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestReadsOfUnknownStrategy(t *testing.T) {
	h, _ := newTestRouter(t)

	for _, path := range []string{
		"/api/strategies/5/ledger",
		"/api/strategies/5/ledger/latest",
		"/api/strategies/5/monthly",
		"/api/strategies/5/export.csv",
	} {
		rec := do(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	register(t, h, "5")
	rec := do(t, h, http.MethodGet, "/api/strategies/5/ledger/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no rows yet")
}

func TestImport(t *testing.T) {
	h, store := newTestRouter(t)
	register(t, h, "3")

	feed := "date,dailyProfitLoss,depositWithdrawal\n" +
		"2025-01-02,0,\"1,000\"\n" +
		"2025-01-03,25,0\n" +
		"2025-01-06,-10,0\n"
	rec := do(t, h, http.MethodPost, "/api/strategies/3/import", feed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(3), decode[map[string]any](t, rec)["appended"])

	rows, err := store.ListRows(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, decimal.NewFromInt(1015).Equal(rows[2].Balance))

	// 이미 있는 날짜부터 다시 넣으면 체인이 멈춤
	rec = do(t, h, http.MethodPost, "/api/strategies/3/import", "date,dailyProfitLoss,depositWithdrawal\n2025-01-06,1,0\n")
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/strategies/3/import", "date,amount\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRebuild(t *testing.T) {
	h, _ := newTestRouter(t)
	register(t, h, "4")
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/strategies/4/daily", daily("2025-01-02", "0", "1000")).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/strategies/4/daily", daily("2025-01-03", "10", "0")).Code)

	rec := do(t, h, http.MethodPost, "/api/strategies/4/rebuild", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), decode[map[string]any](t, rec)["rows"])
}

func TestScores(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/scores", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["count"])

	for _, id := range []string{"1", "2"} {
		register(t, h, id)
		require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/strategies/"+id+"/daily", daily("2025-01-02", "0", "1000")).Code)
	}
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/strategies/1/daily", daily("2025-01-03", "50", "0")).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/strategies/2/daily", daily("2025-01-03", "-50", "0")).Code)

	rec = do(t, h, http.MethodPost, "/api/scores/run", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	board := decode[contracts.ScoreBoard](t, rec)
	assert.Len(t, board.Scores, 2)

	rec = do(t, h, http.MethodGet, "/api/scores", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode[map[string]any](t, rec)["count"])
}

func TestRegisterValidation(t *testing.T) {
	h, _ := newTestRouter(t)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/strategies", `{"id":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/strategies", `nope`).Code)
}
