package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/sysmetic/backend/internal/contracts"
)

// LedgerStore is an in-memory implementation of the ledger, score and
// strategy stores. Rows and summaries are copied on the way in and out.
type LedgerStore struct {
	mu         sync.RWMutex
	strategies map[int64]string
	rows       map[int64][]*contracts.LedgerRow // date ASC
	months     map[int64]map[contracts.MonthKey]*contracts.MonthlySummaryRow
	scores     []contracts.SMScore
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		strategies: make(map[int64]string),
		rows:       make(map[int64][]*contracts.LedgerRow),
		months:     make(map[int64]map[contracts.MonthKey]*contracts.MonthlySummaryRow),
	}
}

var (
	_ contracts.LedgerRepository = (*LedgerStore)(nil)
	_ contracts.ScoreRepository  = (*LedgerStore)(nil)
	_ contracts.StrategyRegistry = (*LedgerStore)(nil)
)

func copyRow(r *contracts.LedgerRow) *contracts.LedgerRow {
	c := *r
	return &c
}

func copySummary(m *contracts.MonthlySummaryRow) *contracts.MonthlySummaryRow {
	c := *m
	return &c
}

// RegisterStrategy creates (or renames) a strategy identity.
func (s *LedgerStore) RegisterStrategy(_ context.Context, strategyID int64, name string) error {
	if strategyID <= 0 {
		return fmt.Errorf("strategy id %d: %w", strategyID, contracts.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.strategies[strategyID] = name
	return nil
}

// StrategyExists reports whether the strategy is registered.
func (s *LedgerStore) StrategyExists(_ context.Context, strategyID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.strategies[strategyID]
	return ok, nil
}

// GetLatestRow returns the most recent row or nil.
func (s *LedgerStore) GetLatestRow(_ context.Context, strategyID int64) (*contracts.LedgerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.rows[strategyID]
	if len(rows) == 0 {
		return nil, nil
	}
	return copyRow(rows[len(rows)-1]), nil
}

// ListRows returns every row of the strategy, date ASC.
func (s *LedgerStore) ListRows(_ context.Context, strategyID int64) ([]*contracts.LedgerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*contracts.LedgerRow, 0, len(s.rows[strategyID]))
	for _, r := range s.rows[strategyID] {
		result = append(result, copyRow(r))
	}
	return result, nil
}

// ListRowsInMonth returns the rows of one calendar month, date ASC.
func (s *LedgerStore) ListRowsInMonth(_ context.Context, strategyID int64, month contracts.MonthKey) ([]*contracts.LedgerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*contracts.LedgerRow, 0)
	for _, r := range s.rows[strategyID] {
		if contracts.MonthOf(r.Date) == month {
			result = append(result, copyRow(r))
		}
	}
	return result, nil
}

// GetDailyProfitLossSeries returns daily P&L strictly before the date.
func (s *LedgerStore) GetDailyProfitLossSeries(_ context.Context, strategyID int64, before time.Time) ([]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := make([]decimal.Decimal, 0)
	for _, r := range s.rows[strategyID] {
		if !r.Date.Before(before) {
			break
		}
		series = append(series, r.DailyProfitLoss)
	}
	return series, nil
}

// GetDrawdownSeries returns (ddDay, maxDdInRate) strictly before the date.
func (s *LedgerStore) GetDrawdownSeries(_ context.Context, strategyID int64, before time.Time) ([]contracts.DrawdownPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := make([]contracts.DrawdownPoint, 0)
	for _, r := range s.rows[strategyID] {
		if !r.Date.Before(before) {
			break
		}
		series = append(series, contracts.DrawdownPoint{DDDay: r.DDDay, MaxDDInRate: r.MaxDDInRate})
	}
	return series, nil
}

// GetBalanceOnOrBefore returns the balance of the latest row on or before the date.
func (s *LedgerStore) GetBalanceOnOrBefore(_ context.Context, strategyID int64, date time.Time) (*decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.rows[strategyID]
	i := sort.Search(len(rows), func(i int) bool { return rows[i].Date.After(date) })
	if i == 0 {
		return nil, nil
	}
	balance := rows[i-1].Balance
	return &balance, nil
}

// GetMonthlySummary returns the summary of a month or nil.
func (s *LedgerStore) GetMonthlySummary(_ context.Context, strategyID int64, month contracts.MonthKey) (*contracts.MonthlySummaryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.months[strategyID][month]
	if !ok {
		return nil, nil
	}
	return copySummary(m), nil
}

// GetPreviousMonthlySummary returns the latest summary strictly before month, or nil.
func (s *LedgerStore) GetPreviousMonthlySummary(_ context.Context, strategyID int64, month contracts.MonthKey) (*contracts.MonthlySummaryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *contracts.MonthlySummaryRow
	for key, m := range s.months[strategyID] {
		if key.Before(month) && (best == nil || best.Key().Before(key)) {
			best = m
		}
	}
	if best == nil {
		return nil, nil
	}
	return copySummary(best), nil
}

// ListMonthlySummaries returns all summaries ordered by month.
func (s *LedgerStore) ListMonthlySummaries(_ context.Context, strategyID int64) ([]*contracts.MonthlySummaryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*contracts.MonthlySummaryRow, 0, len(s.months[strategyID]))
	for _, m := range s.months[strategyID] {
		result = append(result, copySummary(m))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key().Before(result[j].Key())
	})
	return result, nil
}

// SaveDay appends the row and upserts its month summary atomically.
// Returns ErrDuplicateDay if the date already exists.
func (s *LedgerStore) SaveDay(_ context.Context, row *contracts.LedgerRow, summary *contracts.MonthlySummaryRow) error {
	if row == nil {
		return contracts.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.strategies[row.StrategyID]; !ok {
		return fmt.Errorf("strategy %d: %w", row.StrategyID, contracts.ErrStrategyNotFound)
	}

	rows := s.rows[row.StrategyID]
	if n := len(rows); n > 0 {
		last := rows[n-1].Date
		switch {
		case row.Date.Equal(last):
			return fmt.Errorf("strategy %d on %s: %w", row.StrategyID, row.Date.Format(contracts.DateLayout), contracts.ErrDuplicateDay)
		case row.Date.Before(last):
			if s.hasDateLocked(row.StrategyID, row.Date) {
				return fmt.Errorf("strategy %d on %s: %w", row.StrategyID, row.Date.Format(contracts.DateLayout), contracts.ErrDuplicateDay)
			}
			return fmt.Errorf("strategy %d on %s: %w", row.StrategyID, row.Date.Format(contracts.DateLayout), contracts.ErrOutOfOrderDay)
		}
	}

	s.rows[row.StrategyID] = append(rows, copyRow(row))
	if summary != nil {
		s.putSummaryLocked(summary)
	}
	return nil
}

// ReplaceFrom drops every row on or after from (and the summaries of their
// months) and writes the replacements atomically.
func (s *LedgerStore) ReplaceFrom(_ context.Context, strategyID int64, from time.Time, rows []*contracts.LedgerRow, summaries []*contracts.MonthlySummaryRow) error {
	// 검증 후 반영 (부분 쓰기 금지)
	for i, r := range rows {
		if r.StrategyID != strategyID || r.Date.Before(from) || (i > 0 && !r.Date.After(rows[i-1].Date)) {
			return fmt.Errorf("replacement row %d: %w", i, contracts.ErrInvalidInput)
		}
	}
	for _, m := range summaries {
		if m.StrategyID != strategyID {
			return fmt.Errorf("replacement summary %04d-%02d: %w", m.Year, m.Month, contracts.ErrInvalidInput)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.strategies[strategyID]; !ok {
		return fmt.Errorf("strategy %d: %w", strategyID, contracts.ErrStrategyNotFound)
	}

	existing := s.rows[strategyID]
	cut := sort.Search(len(existing), func(i int) bool { return !existing[i].Date.Before(from) })
	kept := make([]*contracts.LedgerRow, 0, cut+len(rows))
	kept = append(kept, existing[:cut]...)
	for _, r := range rows {
		kept = append(kept, copyRow(r))
	}
	s.rows[strategyID] = kept

	fromMonth := contracts.MonthOf(from)
	for key := range s.months[strategyID] {
		if !key.Before(fromMonth) {
			delete(s.months[strategyID], key)
		}
	}
	for _, m := range summaries {
		s.putSummaryLocked(m)
	}
	return nil
}

// ListLatestKPRatios returns the latest kpRatio of every strategy with at
// least minOperationDays, strategy ASC.
func (s *LedgerStore) ListLatestKPRatios(_ context.Context, minOperationDays int) ([]contracts.KPRatioEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]contracts.KPRatioEntry, 0, len(s.rows))
	for id, rows := range s.rows {
		if len(rows) == 0 {
			continue
		}
		latest := rows[len(rows)-1]
		if latest.StrategyOperationDays < minOperationDays {
			continue
		}
		entries = append(entries, contracts.KPRatioEntry{StrategyID: id, Date: latest.Date, KPRatio: latest.KPRatio})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StrategyID < entries[j].StrategyID })
	return entries, nil
}

// SaveScores replaces the score board and stamps smScore on the scored rows.
func (s *LedgerStore) SaveScores(_ context.Context, scores []contracts.SMScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sc := range scores {
		for _, r := range s.rows[sc.StrategyID] {
			if r.Date.Equal(sc.Date) {
				r.SMScore = sc.Score
				break
			}
		}
	}
	s.scores = append([]contracts.SMScore(nil), scores...)
	return nil
}

// ListScores returns the last committed score board.
func (s *LedgerStore) ListScores(_ context.Context) ([]contracts.SMScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]contracts.SMScore{}, s.scores...), nil
}

func (s *LedgerStore) hasDateLocked(strategyID int64, date time.Time) bool {
	rows := s.rows[strategyID]
	i := sort.Search(len(rows), func(i int) bool { return !rows[i].Date.Before(date) })
	return i < len(rows) && rows[i].Date.Equal(date)
}

func (s *LedgerStore) putSummaryLocked(m *contracts.MonthlySummaryRow) {
	if s.months[m.StrategyID] == nil {
		s.months[m.StrategyID] = make(map[contracts.MonthKey]*contracts.MonthlySummaryRow)
	}
	s.months[m.StrategyID][m.Key()] = copySummary(m)
}
