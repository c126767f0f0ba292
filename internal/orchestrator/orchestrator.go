package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/internal/ledger"
	"github.com/wonny/sysmetic/backend/internal/monthly"
	"github.com/wonny/sysmetic/backend/pkg/logger"
)

// TradingCalendar is the injected trading-day predicate
type TradingCalendar interface {
	IsTradingDay(date time.Time) bool
	NextTradingDay(date time.Time) time.Time
}

// Orchestrator sequences one data point through the ledger engine and the
// monthly roll-up and persists both atomically.
// ⭐ SSOT: 일간 데이터 등록/수정/삭제 흐름은 여기서만
type Orchestrator struct {
	repo     contracts.LedgerRepository
	engine   *ledger.Engine
	calendar TradingCalendar
	locks    *strategyLocks
	events   contracts.EventSink
	workers  int
	logger   *logger.Logger
}

// New creates an orchestrator
func New(repo contracts.LedgerRepository, engine *ledger.Engine, cal TradingCalendar, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		engine:   engine,
		calendar: cal,
		locks:    newStrategyLocks(),
		events:   contracts.EventSinks{},
		workers:  4,
		logger:   log,
	}
}

// SetEventSink sets where committed changes are published
func (o *Orchestrator) SetEventSink(sink contracts.EventSink) {
	if sink != nil {
		o.events = sink
	}
}

// SetWorkers bounds how many strategies AppendBatch processes concurrently
func (o *Orchestrator) SetWorkers(n int) {
	if n > 0 {
		o.workers = n
	}
}

// Append computes and stores the next day of a strategy. The date must be
// the next trading day after the latest row (any trading day for the first row).
func (o *Orchestrator) Append(ctx context.Context, in contracts.DailyInput) (*contracts.LedgerRow, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	unlock := o.locks.lock(in.StrategyID)
	defer unlock()

	if err := o.ensureStrategy(ctx, in.StrategyID); err != nil {
		return nil, err
	}

	latest, err := o.repo.GetLatestRow(ctx, in.StrategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest row: %w", err)
	}
	if err := o.checkSequence(ctx, latest, in); err != nil {
		return nil, err
	}

	hist, err := o.loadHistory(ctx, in)
	if err != nil {
		return nil, err
	}

	row, err := o.engine.Next(latest, in, hist)
	if err != nil {
		return nil, err
	}

	// 월간 분석 누적
	key := contracts.MonthOf(row.Date)
	current, err := o.repo.GetMonthlySummary(ctx, in.StrategyID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly summary: %w", err)
	}
	prevMonth, err := o.repo.GetPreviousMonthlySummary(ctx, in.StrategyID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get previous monthly summary: %w", err)
	}
	summary, err := monthly.Accumulate(current, prevMonth, row)
	if err != nil {
		return nil, err
	}

	if err := o.repo.SaveDay(ctx, row, summary); err != nil {
		return nil, fmt.Errorf("failed to save day: %w", err)
	}

	o.events.Publish(ctx, contracts.NewEvent(contracts.EventLedgerAppended, row.StrategyID, row.Date.Format(contracts.DateLayout), row))

	o.logger.WithStrategy(in.StrategyID).WithDate(row.Date).WithFields(map[string]interface{}{
		"balance":   row.Balance.String(),
		"kp_ratio":  row.KPRatio.String(),
		"new_month": current == nil,
	}).Debug("Daily row appended")

	return row, nil
}

// Correct replaces the raw inputs of an existing day and replays the
// recurrence forward from it, rebuilding every affected month.
func (o *Orchestrator) Correct(ctx context.Context, in contracts.DailyInput) ([]*contracts.LedgerRow, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	unlock := o.locks.lock(in.StrategyID)
	defer unlock()

	if err := o.ensureStrategy(ctx, in.StrategyID); err != nil {
		return nil, err
	}

	rows, err := o.repo.ListRows(ctx, in.StrategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}

	idx := sort.Search(len(rows), func(i int) bool { return !rows[i].Date.Before(in.Date) })
	if idx == len(rows) || !rows[idx].Date.Equal(in.Date) {
		return nil, fmt.Errorf("strategy %d on %s: %w", in.StrategyID, in.Date.Format(contracts.DateLayout), contracts.ErrDayNotFound)
	}

	inputs := make([]contracts.DailyInput, 0, len(rows)-idx)
	inputs = append(inputs, in)
	for _, r := range rows[idx+1:] {
		inputs = append(inputs, r.Input())
	}

	replayed, err := o.replaceTail(ctx, in.StrategyID, rows[:idx], inputs)
	if err != nil {
		return nil, err
	}

	o.logger.WithStrategy(in.StrategyID).WithDate(in.Date).WithField("replayed", len(replayed)).Info("Daily row corrected")

	return replayed, nil
}

// Rebuild recomputes a strategy's whole ledger from its stored raw inputs
// (e.g. after a policy change)
func (o *Orchestrator) Rebuild(ctx context.Context, strategyID int64) ([]*contracts.LedgerRow, error) {
	unlock := o.locks.lock(strategyID)
	defer unlock()

	if err := o.ensureStrategy(ctx, strategyID); err != nil {
		return nil, err
	}

	rows, err := o.repo.ListRows(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	inputs := make([]contracts.DailyInput, len(rows))
	for i, r := range rows {
		inputs[i] = r.Input()
	}

	replayed, err := o.replaceTail(ctx, strategyID, nil, inputs)
	if err != nil {
		return nil, err
	}

	o.logger.WithStrategy(strategyID).WithFields(map[string]interface{}{
		"rows":      len(replayed),
		"principal": o.engine.PrincipalPolicy().Name(),
		"drawdown":  o.engine.DrawdownPolicy().Name(),
	}).Info("Ledger rebuilt")

	return replayed, nil
}

// DeleteLatest removes the newest row of a strategy and rebuilds its month
func (o *Orchestrator) DeleteLatest(ctx context.Context, strategyID int64) (*contracts.LedgerRow, error) {
	unlock := o.locks.lock(strategyID)
	defer unlock()

	if err := o.ensureStrategy(ctx, strategyID); err != nil {
		return nil, err
	}

	latest, err := o.repo.GetLatestRow(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest row: %w", err)
	}
	if latest == nil {
		return nil, fmt.Errorf("strategy %d has no rows: %w", strategyID, contracts.ErrDayNotFound)
	}

	key := contracts.MonthOf(latest.Date)
	monthRows, err := o.repo.ListRowsInMonth(ctx, strategyID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list month rows: %w", err)
	}
	prevMonth, err := o.repo.GetPreviousMonthlySummary(ctx, strategyID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get previous monthly summary: %w", err)
	}

	// 삭제 후 남은 행으로 월간 분석 재집계 (남은 행이 없으면 Open 상태로)
	var summaries []*contracts.MonthlySummaryRow
	if remaining := monthRows[:len(monthRows)-1]; len(remaining) > 0 {
		summary, err := monthly.Rollup(prevMonth, remaining)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}

	if err := o.repo.ReplaceFrom(ctx, strategyID, latest.Date, nil, summaries); err != nil {
		return nil, fmt.Errorf("failed to delete latest row: %w", err)
	}

	o.events.Publish(ctx, contracts.NewEvent(contracts.EventLedgerReplaced, strategyID, latest.Date.Format(contracts.DateLayout), nil))

	o.logger.WithStrategy(strategyID).WithDate(latest.Date).Info("Latest daily row deleted")

	return latest, nil
}

// BatchResult is the outcome of one strategy's chain in AppendBatch
type BatchResult struct {
	StrategyID int64  `json:"strategyId"`
	Appended   int    `json:"appended"`
	Error      string `json:"error,omitempty"`
	Err        error  `json:"-"`
}

// AppendBatch appends many inputs. Each strategy's inputs run in date order;
// strategies run concurrently. A failure stops only that strategy's chain.
func (o *Orchestrator) AppendBatch(ctx context.Context, inputs []contracts.DailyInput) []BatchResult {
	byStrategy := make(map[int64][]contracts.DailyInput)
	for _, in := range inputs {
		byStrategy[in.StrategyID] = append(byStrategy[in.StrategyID], in)
	}

	ids := make([]int64, 0, len(byStrategy))
	for id := range byStrategy {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	results := make([]BatchResult, len(ids))

	var g errgroup.Group
	g.SetLimit(o.workers)

	for i, id := range ids {
		i, id := i, id
		chain := byStrategy[id]
		sort.SliceStable(chain, func(a, b int) bool { return chain[a].Date.Before(chain[b].Date) })

		g.Go(func() error {
			res := BatchResult{StrategyID: id}
			for _, in := range chain {
				if err := ctx.Err(); err != nil {
					res.Err = err
					break
				}
				if _, err := o.Append(ctx, in); err != nil {
					res.Err = err
					break
				}
				res.Appended++
			}
			if res.Err != nil {
				res.Error = res.Err.Error()
				o.logger.WithStrategy(id).WithError(res.Err).Warnf("Batch chain stopped after %d rows", res.Appended)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// replaceTail folds inputs on top of prior rows, rebuilds the monthly
// summaries from the first replayed month and writes everything at once
func (o *Orchestrator) replaceTail(ctx context.Context, strategyID int64, prior []*contracts.LedgerRow, inputs []contracts.DailyInput) ([]*contracts.LedgerRow, error) {
	from := inputs[0].Date

	replayed, err := o.engine.Fold(prior, inputs)
	if err != nil {
		return nil, err
	}

	key := contracts.MonthOf(from)
	prevMonth, err := o.repo.GetPreviousMonthlySummary(ctx, strategyID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get previous monthly summary: %w", err)
	}

	// 수정일이 속한 달의 앞부분 행도 다시 집계
	monthRows := make([]*contracts.LedgerRow, 0, len(replayed))
	for _, r := range prior {
		if contracts.MonthOf(r.Date) == key {
			monthRows = append(monthRows, r)
		}
	}
	monthRows = append(monthRows, replayed...)

	summaries, err := monthly.RollupAll(prevMonth, monthRows)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := o.repo.ReplaceFrom(ctx, strategyID, from, replayed, summaries); err != nil {
		return nil, fmt.Errorf("failed to replace rows: %w", err)
	}

	o.events.Publish(ctx, contracts.NewEvent(contracts.EventLedgerReplaced, strategyID, from.Format(contracts.DateLayout), nil))

	return replayed, nil
}

func (o *Orchestrator) ensureStrategy(ctx context.Context, strategyID int64) error {
	exists, err := o.repo.StrategyExists(ctx, strategyID)
	if err != nil {
		return fmt.Errorf("failed to resolve strategy: %w", err)
	}
	if !exists {
		return fmt.Errorf("strategy %d: %w", strategyID, contracts.ErrStrategyNotFound)
	}
	return nil
}

// checkSequence rejects duplicate and out-of-order days before the recurrence runs
func (o *Orchestrator) checkSequence(ctx context.Context, latest *contracts.LedgerRow, in contracts.DailyInput) error {
	date := in.Date.Format(contracts.DateLayout)

	if latest == nil {
		if !o.calendar.IsTradingDay(in.Date) {
			return fmt.Errorf("strategy %d on %s is not a trading day: %w", in.StrategyID, date, contracts.ErrOutOfOrderDay)
		}
		return nil
	}

	if !in.Date.After(latest.Date) {
		if in.Date.Equal(latest.Date) {
			return fmt.Errorf("strategy %d on %s: %w", in.StrategyID, date, contracts.ErrDuplicateDay)
		}
		monthRows, err := o.repo.ListRowsInMonth(ctx, in.StrategyID, contracts.MonthOf(in.Date))
		if err != nil {
			return fmt.Errorf("failed to list month rows: %w", err)
		}
		for _, r := range monthRows {
			if r.Date.Equal(in.Date) {
				return fmt.Errorf("strategy %d on %s: %w", in.StrategyID, date, contracts.ErrDuplicateDay)
			}
		}
		return fmt.Errorf("strategy %d on %s is before latest %s: %w",
			in.StrategyID, date, latest.Date.Format(contracts.DateLayout), contracts.ErrOutOfOrderDay)
	}

	if expected := o.calendar.NextTradingDay(latest.Date); !in.Date.Equal(expected) {
		return fmt.Errorf("strategy %d on %s, expected %s: %w",
			in.StrategyID, date, expected.Format(contracts.DateLayout), contracts.ErrOutOfOrderDay)
	}
	return nil
}

// loadHistory fetches the series the recurrence needs beyond the previous row
func (o *Orchestrator) loadHistory(ctx context.Context, in contracts.DailyInput) (ledger.History, error) {
	pls, err := o.repo.GetDailyProfitLossSeries(ctx, in.StrategyID, in.Date)
	if err != nil {
		return ledger.History{}, fmt.Errorf("failed to get daily P&L series: %w", err)
	}
	dds, err := o.repo.GetDrawdownSeries(ctx, in.StrategyID, in.Date)
	if err != nil {
		return ledger.History{}, fmt.Errorf("failed to get drawdown series: %w", err)
	}
	yearAgo, err := o.repo.GetBalanceOnOrBefore(ctx, in.StrategyID, ledger.YearAgo(in.Date))
	if err != nil {
		return ledger.History{}, fmt.Errorf("failed to get balance a year ago: %w", err)
	}

	return ledger.History{DailyProfitLoss: pls, Drawdowns: dds, BalanceYearAgo: yearAgo}, nil
}

// normalize validates the identity and truncates the date to a UTC calendar day
func normalize(in contracts.DailyInput) (contracts.DailyInput, error) {
	if in.StrategyID <= 0 {
		return in, fmt.Errorf("strategy id %d: %w", in.StrategyID, contracts.ErrInvalidInput)
	}
	if in.Date.IsZero() {
		return in, fmt.Errorf("missing date: %w", contracts.ErrInvalidInput)
	}
	in.Date = time.Date(in.Date.Year(), in.Date.Month(), in.Date.Day(), 0, 0, 0, 0, time.UTC)
	return in, nil
}
