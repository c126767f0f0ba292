package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/wonny/sysmetic/backend/internal/calendar"
	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/internal/orchestrator"
	"github.com/wonny/sysmetic/backend/internal/transfer"
	"github.com/wonny/sysmetic/backend/pkg/logger"
	"github.com/wonny/sysmetic/backend/pkg/redis"
)

// LedgerHandler handles daily data and ledger API endpoints
// ⭐ SSOT: 일간/월간 분석 API 핸들러는 이 구조체에서만
type LedgerHandler struct {
	orchestrator *orchestrator.Orchestrator
	repo         contracts.LedgerRepository
	registry     contracts.StrategyRegistry
	calendar     *calendar.Calendar
	cache        *redis.Cache
	limiter      *redis.RateLimiter
	logger       *logger.Logger
	now          func() time.Time
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(
	orch *orchestrator.Orchestrator,
	repo contracts.LedgerRepository,
	registry contracts.StrategyRegistry,
	cal *calendar.Calendar,
	cache *redis.Cache,
	limiter *redis.RateLimiter,
	log *logger.Logger,
) *LedgerHandler {
	return &LedgerHandler{
		orchestrator: orch,
		repo:         repo,
		registry:     registry,
		calendar:     cal,
		cache:        cache,
		limiter:      limiter,
		logger:       log,
		now:          time.Now,
	}
}

// RegisterRequest represents a strategy registration
type RegisterRequest struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DailyRequest represents one day of author input
type DailyRequest struct {
	Date              string          `json:"date"` // YYYY-MM-DD
	DailyProfitLoss   decimal.Decimal `json:"dailyProfitLoss"`
	DepositWithdrawal decimal.Decimal `json:"depositWithdrawal"`
}

// RegisterStrategy registers (or renames) a strategy identity
// POST /api/strategies
func (h *LedgerHandler) RegisterStrategy(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ID <= 0 {
		respondError(w, http.StatusBadRequest, "id must be positive")
		return
	}

	if err := h.registry.RegisterStrategy(r.Context(), req.ID, req.Name); err != nil {
		respondDomainError(w, h.logger, err, "Failed to register strategy")
		return
	}

	h.logger.WithStrategy(req.ID).WithField("name", req.Name).Info("Strategy registered")
	respondJSON(w, http.StatusCreated, req)
}

// AppendDaily appends the next trading day
// POST /api/strategies/{id}/daily
func (h *LedgerHandler) AppendDaily(w http.ResponseWriter, r *http.Request) {
	id, ok := h.writeGuard(w, r)
	if !ok {
		return
	}

	in, err := h.decodeDaily(r, id, "")
	if err != nil {
		respondDomainError(w, h.logger, err, "Invalid daily input")
		return
	}

	row, err := h.orchestrator.Append(r.Context(), in)
	if err != nil {
		respondDomainError(w, h.logger, err, "Failed to append daily data")
		return
	}

	respondJSON(w, http.StatusCreated, row)
}

// CorrectDaily replaces the inputs of an existing day and replays every later day
// PUT /api/strategies/{id}/daily/{date}
func (h *LedgerHandler) CorrectDaily(w http.ResponseWriter, r *http.Request) {
	id, ok := h.writeGuard(w, r)
	if !ok {
		return
	}

	in, err := h.decodeDaily(r, id, mux.Vars(r)["date"])
	if err != nil {
		respondDomainError(w, h.logger, err, "Invalid daily input")
		return
	}

	rows, err := h.orchestrator.Correct(r.Context(), in)
	if err != nil {
		respondDomainError(w, h.logger, err, "Failed to correct daily data")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"replayed": len(rows),
		"rows":     rows,
	})
}

// DeleteLatest removes the most recent day
// DELETE /api/strategies/{id}/daily/latest
func (h *LedgerHandler) DeleteLatest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.writeGuard(w, r)
	if !ok {
		return
	}

	row, err := h.orchestrator.DeleteLatest(r.Context(), id)
	if err != nil {
		respondDomainError(w, h.logger, err, "Failed to delete latest daily data")
		return
	}

	respondJSON(w, http.StatusOK, row)
}

// Rebuild recomputes every row and summary from the stored inputs
// POST /api/strategies/{id}/rebuild
func (h *LedgerHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	id, ok := h.writeGuard(w, r)
	if !ok {
		return
	}

	rows, err := h.orchestrator.Rebuild(r.Context(), id)
	if err != nil {
		respondDomainError(w, h.logger, err, "Failed to rebuild ledger")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"strategyId": id,
		"rows":       len(rows),
	})
}

// Import appends an input feed CSV (date,dailyProfitLoss,depositWithdrawal)
// POST /api/strategies/{id}/import
func (h *LedgerHandler) Import(w http.ResponseWriter, r *http.Request) {
	id, ok := h.writeGuard(w, r)
	if !ok {
		return
	}

	inputs, err := transfer.ReadInputs(r.Body, id)
	if err != nil {
		respondDomainError(w, h.logger, err, "Invalid input feed")
		return
	}
	for _, in := range inputs {
		if in.StrategyID != id {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("row for strategy %d in feed of strategy %d", in.StrategyID, id))
			return
		}
		if err := h.calendar.Validate(in.Date, h.now()); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	results := h.orchestrator.AppendBatch(r.Context(), inputs)

	result := orchestrator.BatchResult{StrategyID: id}
	if len(results) > 0 {
		result = results[0]
	}
	status := http.StatusOK
	if result.Err != nil {
		status = statusOf(result.Err)
	}
	respondJSON(w, status, result)
}

// GetLedger returns the daily rows, optionally bounded by ?from= and ?to=
// GET /api/strategies/{id}/ledger
func (h *LedgerHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id, err := strategyIDVar(r)
	if err != nil {
		respondDomainError(w, h.logger, err, "Invalid strategy id")
		return
	}

	from, to, err := dateRange(r)
	if err != nil {
		respondDomainError(w, h.logger, err, "Invalid date range")
		return
	}

	rows, err := h.ledgerRows(r.Context(), id)
	if err != nil {
		respondDomainError(w, h.logger, err, "Failed to retrieve ledger")
		return
	}

	filtered := make([]*contracts.LedgerRow, 0, len(rows))
	for _, row := range rows {
		if (!from.IsZero() && row.Date.Before(from)) || (!to.IsZero() && row.Date.After(to)) {
			continue
		}
		filtered = append(filtered, row)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"strategyId": id,
		"count":      len(filtered),
		"rows":       filtered,
	})
}

// GetLatest returns the most recent daily row
// GET /api/strategies/{id}/ledger/latest
func (h *LedgerHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	id, err := strategyIDVar(r)
	if err != nil {
		respondDomainError(w, h.logger, err, "Invalid strategy id")
		return
	}

	var row *contracts.LedgerRow
	err = h.cache.GetOrSet(r.Context(), redis.LatestRowKey(id), &row, redis.TTLShort, func() (interface{}, error) {
		if err := h.requireStrategy(r.Context(), id); err != nil {
			return nil, err
		}
		return h.repo.GetLatestRow(r.Context(), id)
	})
	if err != nil {
		respondDomainError(w, h.logger, err, "Failed to retrieve latest row")
		return
	}
	if row == nil {
		respondError(w, http.StatusNotFound, "no daily data")
		return
	}

	respondJSON(w, http.StatusOK, row)
}

// GetMonthly returns the monthly summaries
// GET /api/strategies/{id}/monthly
func (h *LedgerHandler) GetMonthly(w http.ResponseWriter, r *http.Request) {
	id, err := strategyIDVar(r)
	if err != nil {
		respondDomainError(w, h.logger, err, "Invalid strategy id")
		return
	}

	summaries, err := h.monthlyRows(r.Context(), id)
	if err != nil {
		respondDomainError(w, h.logger, err, "Failed to retrieve monthly summaries")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"strategyId": id,
		"count":      len(summaries),
		"months":     summaries,
	})
}

// Export streams the ledger (or ?kind=monthly summaries) as CSV
// GET /api/strategies/{id}/export.csv
func (h *LedgerHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, err := strategyIDVar(r)
	if err != nil {
		respondDomainError(w, h.logger, err, "Invalid strategy id")
		return
	}

	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "ledger"
	}

	var write func(http.ResponseWriter) error
	switch kind {
	case "ledger":
		rows, err := h.ledgerRows(r.Context(), id)
		if err != nil {
			respondDomainError(w, h.logger, err, "Failed to retrieve ledger")
			return
		}
		write = func(w http.ResponseWriter) error { return transfer.WriteLedger(w, rows) }
	case "monthly":
		summaries, err := h.monthlyRows(r.Context(), id)
		if err != nil {
			respondDomainError(w, h.logger, err, "Failed to retrieve monthly summaries")
			return
		}
		write = func(w http.ResponseWriter) error { return transfer.WriteMonthly(w, summaries) }
	default:
		respondError(w, http.StatusBadRequest, "kind must be ledger or monthly")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="strategy-%d-%s.csv"`, id, kind))
	w.WriteHeader(http.StatusOK)
	if err := write(w); err != nil {
		h.logger.WithStrategy(id).WithError(err).Error("CSV export failed")
	}
}

func (h *LedgerHandler) ledgerRows(ctx context.Context, id int64) ([]*contracts.LedgerRow, error) {
	var rows []*contracts.LedgerRow
	err := h.cache.GetOrSet(ctx, redis.LedgerKey(id), &rows, redis.TTLMedium, func() (interface{}, error) {
		if err := h.requireStrategy(ctx, id); err != nil {
			return nil, err
		}
		return h.repo.ListRows(ctx, id)
	})
	return rows, err
}

func (h *LedgerHandler) monthlyRows(ctx context.Context, id int64) ([]*contracts.MonthlySummaryRow, error) {
	var summaries []*contracts.MonthlySummaryRow
	err := h.cache.GetOrSet(ctx, redis.MonthlyKey(id), &summaries, redis.TTLMedium, func() (interface{}, error) {
		if err := h.requireStrategy(ctx, id); err != nil {
			return nil, err
		}
		return h.repo.ListMonthlySummaries(ctx, id)
	})
	return summaries, err
}

func (h *LedgerHandler) requireStrategy(ctx context.Context, id int64) error {
	exists, err := h.repo.StrategyExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("strategy %d: %w", id, contracts.ErrStrategyNotFound)
	}
	return nil
}

// writeGuard parses the strategy id and applies the per-strategy write limit
func (h *LedgerHandler) writeGuard(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strategyIDVar(r)
	if err != nil {
		respondDomainError(w, h.logger, err, "Invalid strategy id")
		return 0, false
	}

	allowed, _, err := h.limiter.Allow(r.Context(), redis.LedgerWriteRateLimit.ForKey(fmt.Sprint(id)))
	if err != nil {
		// 레이트 리밋 장애 시 쓰기는 허용
		h.logger.WithError(err).Warn("Rate limiter unavailable")
		return id, true
	}
	if !allowed {
		respondError(w, http.StatusTooManyRequests, "Too many writes for this strategy")
		return 0, false
	}
	return id, true
}

// decodeDaily reads a DailyRequest; pathDate, when set, overrides the body date
func (h *LedgerHandler) decodeDaily(r *http.Request, id int64, pathDate string) (contracts.DailyInput, error) {
	var req DailyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return contracts.DailyInput{}, fmt.Errorf("request body: %w", contracts.ErrInvalidInput)
	}
	if pathDate != "" {
		req.Date = pathDate
	}

	date, err := parseDate(req.Date)
	if err != nil {
		return contracts.DailyInput{}, err
	}
	if err := h.calendar.Validate(date, h.now()); err != nil {
		return contracts.DailyInput{}, fmt.Errorf("%w: %w", contracts.ErrInvalidInput, err)
	}

	return contracts.DailyInput{
		StrategyID:        id,
		Date:              date,
		DailyProfitLoss:   req.DailyProfitLoss,
		DepositWithdrawal: req.DepositWithdrawal,
	}, nil
}

func dateRange(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = parseDate(raw); err != nil {
			return from, to, err
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = parseDate(raw); err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}
