package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/database"
)

// Repository handles ledger persistence in PostgreSQL
// ⭐ SSOT: 일간/월간 분석 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new ledger repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ contracts.LedgerRepository = (*Repository)(nil)
	_ contracts.StrategyRegistry = (*Repository)(nil)
)

const rowColumns = `strategy_id, trade_date, daily_profit_loss, deposit_withdrawal,
	principal, balance, reference_price,
	cumulative_profit_loss, cumulative_profit_loss_rate, max_cumulative_profit_loss,
	peak, peak_rate, peak_reference_price,
	current_drawdown_amount, current_drawdown_rate, max_drawdown_amount, max_drawdown_rate,
	dd_day, max_dd_in_rate,
	trading_days, total_profit_days, total_loss_days, total_profit, total_loss,
	average_profit, average_loss, win_rate, profit_factor, roa,
	daily_pl_rate, max_daily_profit, max_daily_profit_rate, max_daily_loss, max_daily_loss_rate,
	current_consecutive_pl_days, max_consecutive_profit_days, max_consecutive_loss_days,
	coefficient_of_variation, sharp_ratio, kp_ratio, sm_score,
	days_since_peak, recent_one_year_return, strategy_operation_days,
	cumulative_deposit_amount, cumulative_withdraw_amount, cumulative_dep_wd_price`

// rowFields returns pointers to every persisted field in rowColumns order.
// The same slice serves as Scan destinations and as query arguments.
func rowFields(r *contracts.LedgerRow) []any {
	return []any{
		&r.StrategyID, &r.Date, &r.DailyProfitLoss, &r.DepositWithdrawal,
		&r.Principal, &r.Balance, &r.ReferencePrice,
		&r.CumulativeProfitLoss, &r.CumulativeProfitLossRate, &r.MaxCumulativeProfitLoss,
		&r.Peak, &r.PeakRate, &r.PeakReferencePrice,
		&r.CurrentDrawdownAmount, &r.CurrentDrawdownRate, &r.MaxDrawdownAmount, &r.MaxDrawdownRate,
		&r.DDDay, &r.MaxDDInRate,
		&r.TradingDays, &r.TotalProfitDays, &r.TotalLossDays, &r.TotalProfit, &r.TotalLoss,
		&r.AverageProfit, &r.AverageLoss, &r.WinRate, &r.ProfitFactor, &r.ROA,
		&r.DailyPLRate, &r.MaxDailyProfit, &r.MaxDailyProfitRate, &r.MaxDailyLoss, &r.MaxDailyLossRate,
		&r.CurrentConsecutivePLDays, &r.MaxConsecutiveProfitDays, &r.MaxConsecutiveLossDays,
		&r.CoefficientOfVariation, &r.SharpRatio, &r.KPRatio, &r.SMScore,
		&r.DaysSincePeak, &r.RecentOneYearReturn, &r.StrategyOperationDays,
		&r.CumulativeDepositAmount, &r.CumulativeWithdrawAmount, &r.CumulativeDepWdPrice,
	}
}

const monthColumns = `strategy_id, year, month,
	average_principal, average_balance, deposit_withdrawal, profit_loss,
	monthly_return, cumulative_profit_loss, cumulative_return,
	days, principal_sum, balance_sum, first_reference_price, last_reference_price`

func monthFields(m *contracts.MonthlySummaryRow) []any {
	return []any{
		&m.StrategyID, &m.Year, &m.Month,
		&m.AveragePrincipal, &m.AverageBalance, &m.DepositWithdrawal, &m.ProfitLoss,
		&m.MonthlyReturn, &m.CumulativeProfitLoss, &m.CumulativeReturn,
		&m.Days, &m.PrincipalSum, &m.BalanceSum, &m.FirstReferencePrice, &m.LastReferencePrice,
	}
}

// placeholders returns "$1, $2, ..., $n"
func placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(ps, ", ")
}

var (
	insertRowSQL = `INSERT INTO ledger.daily_rows (` + rowColumns + `) VALUES (` + placeholders(47) + `)
		ON CONFLICT (strategy_id, trade_date) DO NOTHING`

	upsertMonthSQL = `INSERT INTO ledger.monthly_summaries (` + monthColumns + `) VALUES (` + placeholders(15) + `)
		ON CONFLICT (strategy_id, year, month) DO UPDATE SET
			average_principal = EXCLUDED.average_principal,
			average_balance = EXCLUDED.average_balance,
			deposit_withdrawal = EXCLUDED.deposit_withdrawal,
			profit_loss = EXCLUDED.profit_loss,
			monthly_return = EXCLUDED.monthly_return,
			cumulative_profit_loss = EXCLUDED.cumulative_profit_loss,
			cumulative_return = EXCLUDED.cumulative_return,
			days = EXCLUDED.days,
			principal_sum = EXCLUDED.principal_sum,
			balance_sum = EXCLUDED.balance_sum,
			first_reference_price = EXCLUDED.first_reference_price,
			last_reference_price = EXCLUDED.last_reference_price`
)

// RegisterStrategy creates (or renames) a strategy identity
func (r *Repository) RegisterStrategy(ctx context.Context, strategyID int64, name string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ledger.strategies (strategy_id, name) VALUES ($1, $2)
		ON CONFLICT (strategy_id) DO UPDATE SET name = EXCLUDED.name
	`, strategyID, name)
	if err != nil {
		return fmt.Errorf("failed to register strategy: %w", err)
	}
	return nil
}

// StrategyExists reports whether the strategy is registered
func (r *Repository) StrategyExists(ctx context.Context, strategyID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger.strategies WHERE strategy_id = $1)`, strategyID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check strategy: %w", err)
	}
	return exists, nil
}

// GetLatestRow returns the most recent row or nil
func (r *Repository) GetLatestRow(ctx context.Context, strategyID int64) (*contracts.LedgerRow, error) {
	query := `SELECT ` + rowColumns + ` FROM ledger.daily_rows
		WHERE strategy_id = $1
		ORDER BY trade_date DESC
		LIMIT 1`

	var row contracts.LedgerRow
	err := r.pool.QueryRow(ctx, query, strategyID).Scan(rowFields(&row)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest row: %w", err)
	}
	return &row, nil
}

// ListRows returns every row of the strategy, date ASC
func (r *Repository) ListRows(ctx context.Context, strategyID int64) ([]*contracts.LedgerRow, error) {
	query := `SELECT ` + rowColumns + ` FROM ledger.daily_rows
		WHERE strategy_id = $1
		ORDER BY trade_date ASC`
	return r.queryRows(ctx, query, strategyID)
}

// ListRowsInMonth returns the rows of one calendar month, date ASC
func (r *Repository) ListRowsInMonth(ctx context.Context, strategyID int64, month contracts.MonthKey) ([]*contracts.LedgerRow, error) {
	from := time.Date(month.Year, time.Month(month.Month), 1, 0, 0, 0, 0, time.UTC)
	query := `SELECT ` + rowColumns + ` FROM ledger.daily_rows
		WHERE strategy_id = $1 AND trade_date >= $2 AND trade_date < $3
		ORDER BY trade_date ASC`
	return r.queryRows(ctx, query, strategyID, from, from.AddDate(0, 1, 0))
}

func (r *Repository) queryRows(ctx context.Context, query string, args ...any) ([]*contracts.LedgerRow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	result := make([]*contracts.LedgerRow, 0)
	for rows.Next() {
		var row contracts.LedgerRow
		if err := rows.Scan(rowFields(&row)...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, &row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// GetDailyProfitLossSeries returns daily P&L strictly before the date
func (r *Repository) GetDailyProfitLossSeries(ctx context.Context, strategyID int64, before time.Time) ([]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT daily_profit_loss FROM ledger.daily_rows
		WHERE strategy_id = $1 AND trade_date < $2
		ORDER BY trade_date ASC
	`, strategyID, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily P&L: %w", err)
	}
	defer rows.Close()

	series := make([]decimal.Decimal, 0)
	for rows.Next() {
		var v decimal.Decimal
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan daily P&L: %w", err)
		}
		series = append(series, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily P&L: %w", err)
	}
	return series, nil
}

// GetDrawdownSeries returns (dd_day, max_dd_in_rate) strictly before the date
func (r *Repository) GetDrawdownSeries(ctx context.Context, strategyID int64, before time.Time) ([]contracts.DrawdownPoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT dd_day, max_dd_in_rate FROM ledger.daily_rows
		WHERE strategy_id = $1 AND trade_date < $2
		ORDER BY trade_date ASC
	`, strategyID, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query drawdown series: %w", err)
	}
	defer rows.Close()

	series := make([]contracts.DrawdownPoint, 0)
	for rows.Next() {
		var p contracts.DrawdownPoint
		if err := rows.Scan(&p.DDDay, &p.MaxDDInRate); err != nil {
			return nil, fmt.Errorf("failed to scan drawdown point: %w", err)
		}
		series = append(series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drawdown series: %w", err)
	}
	return series, nil
}

// GetBalanceOnOrBefore returns the balance of the latest row dated on or before date
func (r *Repository) GetBalanceOnOrBefore(ctx context.Context, strategyID int64, date time.Time) (*decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT balance FROM ledger.daily_rows
		WHERE strategy_id = $1 AND trade_date <= $2
		ORDER BY trade_date DESC
		LIMIT 1
	`, strategyID, date).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get historical balance: %w", err)
	}
	return &balance, nil
}

// GetMonthlySummary returns the summary of a month or nil
func (r *Repository) GetMonthlySummary(ctx context.Context, strategyID int64, month contracts.MonthKey) (*contracts.MonthlySummaryRow, error) {
	query := `SELECT ` + monthColumns + ` FROM ledger.monthly_summaries
		WHERE strategy_id = $1 AND year = $2 AND month = $3`
	return r.queryMonth(ctx, query, strategyID, month.Year, month.Month)
}

// GetPreviousMonthlySummary returns the latest summary strictly before month, or nil
func (r *Repository) GetPreviousMonthlySummary(ctx context.Context, strategyID int64, month contracts.MonthKey) (*contracts.MonthlySummaryRow, error) {
	query := `SELECT ` + monthColumns + ` FROM ledger.monthly_summaries
		WHERE strategy_id = $1 AND (year, month) < ($2, $3)
		ORDER BY year DESC, month DESC
		LIMIT 1`
	return r.queryMonth(ctx, query, strategyID, month.Year, month.Month)
}

func (r *Repository) queryMonth(ctx context.Context, query string, args ...any) (*contracts.MonthlySummaryRow, error) {
	var m contracts.MonthlySummaryRow
	err := r.pool.QueryRow(ctx, query, args...).Scan(monthFields(&m)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly summary: %w", err)
	}
	return &m, nil
}

// ListMonthlySummaries returns all summaries ordered by month
func (r *Repository) ListMonthlySummaries(ctx context.Context, strategyID int64) ([]*contracts.MonthlySummaryRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+monthColumns+` FROM ledger.monthly_summaries
		WHERE strategy_id = $1
		ORDER BY year ASC, month ASC`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly summaries: %w", err)
	}
	defer rows.Close()

	result := make([]*contracts.MonthlySummaryRow, 0)
	for rows.Next() {
		var m contracts.MonthlySummaryRow
		if err := rows.Scan(monthFields(&m)...); err != nil {
			return nil, fmt.Errorf("failed to scan monthly summary: %w", err)
		}
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monthly summaries: %w", err)
	}
	return result, nil
}

// SaveDay inserts the row and upserts its month summary in one transaction
func (r *Repository) SaveDay(ctx context.Context, row *contracts.LedgerRow, summary *contracts.MonthlySummaryRow) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, insertRowSQL, rowFields(row)...)
		if err != nil {
			return fmt.Errorf("failed to insert row: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("strategy %d on %s: %w", row.StrategyID, row.Date.Format(contracts.DateLayout), contracts.ErrDuplicateDay)
		}

		if summary != nil {
			if _, err := tx.Exec(ctx, upsertMonthSQL, monthFields(summary)...); err != nil {
				return fmt.Errorf("failed to upsert monthly summary: %w", err)
			}
		}
		return nil
	})
}

// ReplaceFrom rewrites the strategy's tail starting at from in one transaction
func (r *Repository) ReplaceFrom(ctx context.Context, strategyID int64, from time.Time, rows []*contracts.LedgerRow, summaries []*contracts.MonthlySummaryRow) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM ledger.daily_rows WHERE strategy_id = $1 AND trade_date >= $2`,
			strategyID, from); err != nil {
			return fmt.Errorf("failed to delete rows: %w", err)
		}

		month := contracts.MonthOf(from)
		if _, err := tx.Exec(ctx,
			`DELETE FROM ledger.monthly_summaries WHERE strategy_id = $1 AND (year, month) >= ($2, $3)`,
			strategyID, month.Year, month.Month); err != nil {
			return fmt.Errorf("failed to delete monthly summaries: %w", err)
		}

		batch := &pgx.Batch{}
		for _, row := range rows {
			batch.Queue(insertRowSQL, rowFields(row)...)
		}
		for _, summary := range summaries {
			batch.Queue(upsertMonthSQL, monthFields(summary)...)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("failed to write replacement rows: %w", err)
			}
		}
		return nil
	})
}
