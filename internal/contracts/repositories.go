package contracts

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만

// LedgerRepository is the row store the orchestrator reads and writes
type LedgerRepository interface {
	// StrategyExists reports whether the strategy has an identity in the store
	StrategyExists(ctx context.Context, strategyID int64) (bool, error)

	// GetLatestRow returns the most recent row, or nil when the strategy has none
	GetLatestRow(ctx context.Context, strategyID int64) (*LedgerRow, error)

	// ListRows returns all rows of the strategy ordered by date ASC
	ListRows(ctx context.Context, strategyID int64) ([]*LedgerRow, error)

	// ListRowsInMonth returns the rows of one calendar month ordered by date ASC
	ListRowsInMonth(ctx context.Context, strategyID int64, month MonthKey) ([]*LedgerRow, error)

	// GetDailyProfitLossSeries returns every daily P&L strictly before the date, date ASC
	GetDailyProfitLossSeries(ctx context.Context, strategyID int64, before time.Time) ([]decimal.Decimal, error)

	// GetDrawdownSeries returns every (ddDay, maxDdInRate) strictly before the date, date ASC
	GetDrawdownSeries(ctx context.Context, strategyID int64, before time.Time) ([]DrawdownPoint, error)

	// GetBalanceOnOrBefore returns the balance of the latest row dated on or before the date
	GetBalanceOnOrBefore(ctx context.Context, strategyID int64, date time.Time) (*decimal.Decimal, error)

	// GetMonthlySummary returns the summary of a month, or nil when the month is still Open
	GetMonthlySummary(ctx context.Context, strategyID int64, month MonthKey) (*MonthlySummaryRow, error)

	// GetPreviousMonthlySummary returns the latest summary strictly before the month, or nil
	GetPreviousMonthlySummary(ctx context.Context, strategyID int64, month MonthKey) (*MonthlySummaryRow, error)

	// ListMonthlySummaries returns all summaries ordered by month ASC
	ListMonthlySummaries(ctx context.Context, strategyID int64) ([]*MonthlySummaryRow, error)

	// SaveDay atomically inserts the row and upserts its month summary.
	// Returns ErrDuplicateDay if the row already exists.
	SaveDay(ctx context.Context, row *LedgerRow, summary *MonthlySummaryRow) error

	// ReplaceFrom atomically deletes every row dated on or after from (and the
	// summaries of their months), then writes rows and summaries.
	ReplaceFrom(ctx context.Context, strategyID int64, from time.Time, rows []*LedgerRow, summaries []*MonthlySummaryRow) error
}

// ScoreRepository reads the scoring population and commits score passes
type ScoreRepository interface {
	// ListLatestKPRatios returns the latest kpRatio of every eligible strategy
	ListLatestKPRatios(ctx context.Context, minOperationDays int) ([]KPRatioEntry, error)

	// SaveScores replaces the score board and stamps each strategy's latest row
	// in one transaction; nothing is written on error
	SaveScores(ctx context.Context, scores []SMScore) error

	// ListScores returns the last committed score board, strategy ASC
	ListScores(ctx context.Context) ([]SMScore, error)
}

// StrategyRegistry registers strategy identities
type StrategyRegistry interface {
	RegisterStrategy(ctx context.Context, strategyID int64, name string) error
}
