package monthly

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/fixedpoint"
)

// Accumulate folds one daily row into its month summary.
// current is nil while the month is still Open; prevMonth is the latest
// summary of an earlier month (nil for the first month).
// ⭐ SSOT: 월간 분석 집계는 여기서만
func Accumulate(current, prevMonth *contracts.MonthlySummaryRow, row *contracts.LedgerRow) (*contracts.MonthlySummaryRow, error) {
	key := contracts.MonthOf(row.Date)

	var next contracts.MonthlySummaryRow
	if current == nil {
		next = contracts.MonthlySummaryRow{
			StrategyID:          row.StrategyID,
			Year:                key.Year,
			Month:               key.Month,
			FirstReferencePrice: row.ReferencePrice,
		}
	} else {
		if current.Key() != key || current.StrategyID != row.StrategyID {
			return nil, fmt.Errorf("row %d/%s does not belong to summary %d/%04d-%02d: %w",
				row.StrategyID, row.Date.Format(contracts.DateLayout),
				current.StrategyID, current.Year, current.Month, contracts.ErrInvalidInput)
		}
		next = *current
	}
	if prevMonth != nil && !prevMonth.Key().Before(key) {
		return nil, fmt.Errorf("previous summary %04d-%02d is not before %04d-%02d: %w",
			prevMonth.Year, prevMonth.Month, key.Year, key.Month, contracts.ErrInvalidInput)
	}

	next.Days++
	next.PrincipalSum = next.PrincipalSum.Add(row.Principal)
	next.BalanceSum = next.BalanceSum.Add(row.Balance)
	next.DepositWithdrawal = fixedpoint.Add(next.DepositWithdrawal, row.DepositWithdrawal, fixedpoint.MoneyScale, fixedpoint.HalfUp)
	next.ProfitLoss = fixedpoint.Add(next.ProfitLoss, row.DailyProfitLoss, fixedpoint.MoneyScale, fixedpoint.HalfUp)
	next.LastReferencePrice = row.ReferencePrice

	days := decimal.NewFromInt(int64(next.Days))
	next.AveragePrincipal = fixedpoint.Div(next.PrincipalSum, days, fixedpoint.MoneyScale, fixedpoint.HalfUp)
	next.AverageBalance = fixedpoint.Div(next.BalanceSum, days, fixedpoint.MoneyScale, fixedpoint.HalfUp)

	// 월 수익률: 마지막 기준가 / 첫 기준가 - 1
	next.MonthlyReturn = decimal.Zero
	if next.FirstReferencePrice.IsPositive() && next.LastReferencePrice.IsPositive() {
		ratio := fixedpoint.Div(next.LastReferencePrice, next.FirstReferencePrice, fixedpoint.IntermediateScale, fixedpoint.HalfUp)
		next.MonthlyReturn = fixedpoint.Rate(ratio.Sub(decimal.NewFromInt(1)))
	}

	// 누적 수익률: 마지막 기준가 / 1000 - 1
	next.CumulativeReturn = decimal.Zero
	if next.LastReferencePrice.IsPositive() {
		ratio := fixedpoint.Div(next.LastReferencePrice, fixedpoint.Base, fixedpoint.IntermediateScale, fixedpoint.HalfUp)
		next.CumulativeReturn = fixedpoint.Rate(ratio.Sub(decimal.NewFromInt(1)))
	}

	prior := decimal.Zero
	if prevMonth != nil {
		prior = prevMonth.CumulativeProfitLoss
	}
	next.CumulativeProfitLoss = fixedpoint.Add(prior, next.ProfitLoss, fixedpoint.MoneyScale, fixedpoint.HalfUp)

	return &next, nil
}

// Rollup re-accumulates a whole month from its rows (date ASC)
func Rollup(prevMonth *contracts.MonthlySummaryRow, rows []*contracts.LedgerRow) (*contracts.MonthlySummaryRow, error) {
	var summary *contracts.MonthlySummaryRow
	for _, row := range rows {
		next, err := Accumulate(summary, prevMonth, row)
		if err != nil {
			return nil, err
		}
		summary = next
	}
	return summary, nil
}

// RollupAll rebuilds consecutive month summaries from rows (date ASC),
// chaining cumulative P&L from prevMonth.
func RollupAll(prevMonth *contracts.MonthlySummaryRow, rows []*contracts.LedgerRow) ([]*contracts.MonthlySummaryRow, error) {
	summaries := make([]*contracts.MonthlySummaryRow, 0)

	start := 0
	for start < len(rows) {
		key := contracts.MonthOf(rows[start].Date)
		end := start
		for end < len(rows) && contracts.MonthOf(rows[end].Date) == key {
			end++
		}

		summary, err := Rollup(prevMonth, rows[start:end])
		if err != nil {
			return nil, fmt.Errorf("rollup %04d-%02d: %w", key.Year, key.Month, err)
		}
		summaries = append(summaries, summary)
		prevMonth = summary
		start = end
	}

	return summaries, nil
}
