package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/fixedpoint"
)

// yearLookbackDays is how far back recentOneYearReturn looks for a balance
const yearLookbackDays = 365

// History is what the recurrence needs beyond the previous row.
// All series end the day before the row being computed.
type History struct {
	DailyProfitLoss []decimal.Decimal
	Drawdowns       []contracts.DrawdownPoint
	BalanceYearAgo  *decimal.Decimal
}

// Engine computes one ledger row from the previous row and today's input
// ⭐ SSOT: 일간 분석 점화식은 여기서만
type Engine struct {
	principal PrincipalPolicy
	drawdown  DrawdownPolicy
}

// NewEngine creates an engine; nil policies fall back to additive / peak-relative
func NewEngine(principal PrincipalPolicy, drawdown DrawdownPolicy) *Engine {
	if principal == nil {
		principal = additivePrincipal{}
	}
	if drawdown == nil {
		drawdown = peakRelativeDrawdown{}
	}
	return &Engine{principal: principal, drawdown: drawdown}
}

// PrincipalPolicy returns the active principal policy
func (e *Engine) PrincipalPolicy() PrincipalPolicy { return e.principal }

// DrawdownPolicy returns the active drawdown policy
func (e *Engine) DrawdownPolicy() DrawdownPolicy { return e.drawdown }

// Next computes today's row. prev is nil on the first entry.
func (e *Engine) Next(prev *contracts.LedgerRow, in contracts.DailyInput, hist History) (*contracts.LedgerRow, error) {
	if prev != nil {
		if prev.StrategyID != in.StrategyID {
			return nil, fmt.Errorf("previous row belongs to strategy %d, input to %d: %w",
				prev.StrategyID, in.StrategyID, contracts.ErrInvalidInput)
		}
		if !in.Date.After(prev.Date) {
			return nil, fmt.Errorf("input %s is not after previous %s: %w",
				in.Date.Format(contracts.DateLayout), prev.Date.Format(contracts.DateLayout), contracts.ErrOutOfOrderDay)
		}
	}

	first := prev == nil
	p := prev
	if first {
		p = &contracts.LedgerRow{}
	}

	row := &contracts.LedgerRow{
		StrategyID:        in.StrategyID,
		Date:              in.Date,
		DailyProfitLoss:   fixedpoint.Money(in.DailyProfitLoss),
		DepositWithdrawal: fixedpoint.Money(in.DepositWithdrawal),
		SMScore:           p.SMScore,
	}
	pl := row.DailyProfitLoss
	dw := row.DepositWithdrawal

	// 1-3. 잔고, 원금, 기준가
	row.Balance = fixedpoint.Add(p.Balance, pl.Add(dw), fixedpoint.MoneyScale, fixedpoint.HalfUp)
	row.Principal = e.principal.Next(prev, dw)
	row.ReferencePrice = referencePrice(row.Principal, row.Balance)

	// 4. 일손익률
	row.DailyPLRate = dailyPLRate(first, p.ReferencePrice, row.ReferencePrice)

	// 5. 누적 손익
	row.CumulativeProfitLoss = fixedpoint.Add(p.CumulativeProfitLoss, pl, fixedpoint.MoneyScale, fixedpoint.HalfUp)
	row.CumulativeProfitLossRate = cumulativeRate(row.ReferencePrice)

	// 6-7. 최대 누적 손익, peak
	row.MaxCumulativeProfitLoss = fixedpoint.Max(row.CumulativeProfitLoss, p.MaxCumulativeProfitLoss)
	row.Peak = fixedpoint.Max(row.MaxCumulativeProfitLoss, decimal.Zero)
	row.PeakRate = fixedpoint.Max(fixedpoint.Max(row.CumulativeProfitLossRate, p.PeakRate), decimal.Zero)
	if row.MaxCumulativeProfitLoss.Equal(p.MaxCumulativeProfitLoss) && p.MaxCumulativeProfitLoss.IsPositive() {
		row.DaysSincePeak = p.DaysSincePeak + 1
	}

	// 8. 낙폭
	e.applyDrawdown(row, p, first)

	// 9-10. 손익 누적, 승률
	applyAccumulators(row, p)

	// 11. 연속 손익, 일간 극값
	applyStreaks(row, p)
	applyDailyExtremes(row, p)

	// 12. 변동계수, 샤프
	series := append(append(make([]decimal.Decimal, 0, len(hist.DailyProfitLoss)+1), hist.DailyProfitLoss...), pl)
	sd := stdDev(series)
	row.CoefficientOfVariation = coefficientOfVariation(sd, row.AverageProfit)
	row.SharpRatio = sharpRatio(sd, row.AverageProfit)

	// 13. KP-Ratio
	points := append(append(make([]contracts.DrawdownPoint, 0, len(hist.Drawdowns)+1), hist.Drawdowns...),
		contracts.DrawdownPoint{DDDay: row.DDDay, MaxDDInRate: row.MaxDDInRate})
	row.KPRatio = kpRatio(row.CumulativeProfitLossRate, row.TradingDays, points)

	// 14. 최근 1년 수익률
	if hist.BalanceYearAgo != nil && hist.BalanceYearAgo.IsPositive() {
		ratio := fixedpoint.Div(row.Balance, *hist.BalanceYearAgo, fixedpoint.IntermediateScale, fixedpoint.HalfUp)
		row.RecentOneYearReturn = fixedpoint.Rate(ratio.Sub(decimal.NewFromInt(1)))
	}

	// 15. 운용 일수
	row.StrategyOperationDays = p.StrategyOperationDays + 1

	// 입출금 누적
	row.CumulativeDepositAmount = p.CumulativeDepositAmount
	row.CumulativeWithdrawAmount = p.CumulativeWithdrawAmount
	switch {
	case dw.IsPositive():
		row.CumulativeDepositAmount = fixedpoint.Add(p.CumulativeDepositAmount, dw, fixedpoint.MoneyScale, fixedpoint.HalfUp)
	case dw.IsNegative():
		row.CumulativeWithdrawAmount = fixedpoint.Add(p.CumulativeWithdrawAmount, dw.Neg(), fixedpoint.MoneyScale, fixedpoint.HalfUp)
	}
	row.CumulativeDepWdPrice = fixedpoint.Add(p.CumulativeDepWdPrice, dw, fixedpoint.MoneyScale, fixedpoint.HalfUp)

	return row, nil
}

// Fold replays inputs (date ASC) on top of prior rows (date ASC) and returns
// the new rows. prior may be empty for a strategy's first day.
func (e *Engine) Fold(prior []*contracts.LedgerRow, inputs []contracts.DailyInput) ([]*contracts.LedgerRow, error) {
	all := make([]*contracts.LedgerRow, 0, len(prior)+len(inputs))
	all = append(all, prior...)

	pls := make([]decimal.Decimal, 0, cap(all))
	dds := make([]contracts.DrawdownPoint, 0, cap(all))
	for _, r := range prior {
		pls = append(pls, r.DailyProfitLoss)
		dds = append(dds, contracts.DrawdownPoint{DDDay: r.DDDay, MaxDDInRate: r.MaxDDInRate})
	}

	out := make([]*contracts.LedgerRow, 0, len(inputs))
	for _, in := range inputs {
		var prev *contracts.LedgerRow
		if len(all) > 0 {
			prev = all[len(all)-1]
		}
		hist := History{
			DailyProfitLoss: pls,
			Drawdowns:       dds,
			BalanceYearAgo:  BalanceOnOrBefore(all, YearAgo(in.Date)),
		}
		row, err := e.Next(prev, in, hist)
		if err != nil {
			return nil, fmt.Errorf("fold %s: %w", in.Date.Format(contracts.DateLayout), err)
		}
		all = append(all, row)
		out = append(out, row)
		pls = append(pls, row.DailyProfitLoss)
		dds = append(dds, contracts.DrawdownPoint{DDDay: row.DDDay, MaxDDInRate: row.MaxDDInRate})
	}
	return out, nil
}

// YearAgo returns the lookback date for recentOneYearReturn
func YearAgo(date time.Time) time.Time {
	return date.AddDate(0, 0, -yearLookbackDays)
}

// BalanceOnOrBefore finds the balance of the latest row dated on or before
// date in rows sorted by date ASC.
func BalanceOnOrBefore(rows []*contracts.LedgerRow, date time.Time) *decimal.Decimal {
	i := sort.Search(len(rows), func(i int) bool { return rows[i].Date.After(date) })
	if i == 0 {
		return nil
	}
	b := rows[i-1].Balance
	return &b
}

// referencePrice = balance / principal * 1000, zero without principal
func referencePrice(principal, balance decimal.Decimal) decimal.Decimal {
	if !principal.IsPositive() {
		return decimal.Zero
	}
	ratio := fixedpoint.Div(balance, principal, fixedpoint.IntermediateScale, fixedpoint.HalfUp)
	return fixedpoint.Mul(ratio, fixedpoint.Base, fixedpoint.RateScale, fixedpoint.HalfUp)
}

// dailyPLRate is the day's reference price change in percent
func dailyPLRate(first bool, prevRef, ref decimal.Decimal) decimal.Decimal {
	base := prevRef
	if first {
		if !ref.IsPositive() {
			return decimal.Zero
		}
		base = fixedpoint.Base
	}
	change := fixedpoint.DivPositive(ref.Sub(base), base, fixedpoint.IntermediateScale, fixedpoint.HalfUp)
	return fixedpoint.Mul(change, fixedpoint.Hundred, fixedpoint.RateScale, fixedpoint.HalfUp)
}

// cumulativeRate = referencePrice/1000 - 1
func cumulativeRate(ref decimal.Decimal) decimal.Decimal {
	if !ref.IsPositive() {
		return decimal.Zero
	}
	ratio := fixedpoint.Div(ref, fixedpoint.Base, fixedpoint.IntermediateScale, fixedpoint.HalfUp)
	return fixedpoint.Rate(ratio.Sub(decimal.NewFromInt(1)))
}

// applyDrawdown: the rate compares today's reference price with the previous
// day's (zero before the first entry), so it is never positive
func (e *Engine) applyDrawdown(row, p *contracts.LedgerRow, first bool) {
	prevRef := p.ReferencePrice
	if first {
		prevRef = decimal.Zero
	}
	row.PeakReferencePrice = fixedpoint.Max(p.PeakReferencePrice, row.ReferencePrice)

	if row.ReferencePrice.IsPositive() {
		row.CurrentDrawdownRate = fixedpoint.Div(
			row.ReferencePrice.Sub(fixedpoint.Max(prevRef, row.ReferencePrice)), row.ReferencePrice,
			fixedpoint.RateScale, fixedpoint.HalfUp)
	}
	row.MaxDrawdownRate = fixedpoint.Min(row.CurrentDrawdownRate, p.MaxDrawdownRate)

	row.CurrentDrawdownAmount = e.drawdown.CurrentAmount(row.CumulativeProfitLoss, row.MaxCumulativeProfitLoss)
	row.MaxDrawdownAmount = fixedpoint.Min(row.CurrentDrawdownAmount, p.MaxDrawdownAmount)

	if row.CurrentDrawdownRate.IsNegative() {
		row.DDDay = 1
		row.MaxDDInRate = row.CurrentDrawdownRate
		if p.DDDay != 0 {
			row.MaxDDInRate = fixedpoint.Min(row.CurrentDrawdownRate, p.MaxDDInRate)
		}
	}
}

func applyAccumulators(row, p *contracts.LedgerRow) {
	pl := row.DailyProfitLoss

	row.TradingDays = p.TradingDays
	row.TotalProfitDays = p.TotalProfitDays
	row.TotalLossDays = p.TotalLossDays
	row.TotalProfit = p.TotalProfit
	row.TotalLoss = p.TotalLoss

	switch {
	case pl.IsPositive():
		row.TradingDays++
		row.TotalProfitDays++
		row.TotalProfit = fixedpoint.Add(p.TotalProfit, pl, fixedpoint.MoneyScale, fixedpoint.HalfUp)
	case pl.IsNegative():
		row.TradingDays++
		row.TotalLossDays++
		row.TotalLoss = fixedpoint.Add(p.TotalLoss, pl, fixedpoint.MoneyScale, fixedpoint.HalfUp)
	}

	row.AverageProfit = fixedpoint.Div(row.TotalProfit, decimal.NewFromInt(int64(row.TotalProfitDays)),
		fixedpoint.MoneyScale, fixedpoint.HalfUp)
	row.AverageLoss = fixedpoint.Div(row.TotalLoss, decimal.NewFromInt(int64(row.TotalLossDays)),
		fixedpoint.MoneyScale, fixedpoint.HalfUp)

	row.WinRate = fixedpoint.Div(decimal.NewFromInt(int64(row.TotalProfitDays)), decimal.NewFromInt(int64(row.TradingDays)),
		fixedpoint.RateScale, fixedpoint.HalfUp)

	if row.TotalLoss.IsNegative() {
		row.ProfitFactor = fixedpoint.Div(row.TotalProfit, row.TotalLoss.Abs(), fixedpoint.RateScale, fixedpoint.HalfUp)
	}

	if !row.MaxDrawdownAmount.IsZero() {
		row.ROA = fixedpoint.Div(row.CumulativeProfitLoss.Neg(), row.MaxDrawdownAmount.Abs(),
			fixedpoint.RateScale, fixedpoint.HalfUp)
	}
}

// applyStreaks: +n for n profit days in a row, -n for n loss days, 0 on a flat day
func applyStreaks(row, p *contracts.LedgerRow) {
	pl := row.DailyProfitLoss
	switch {
	case pl.IsPositive():
		if p.CurrentConsecutivePLDays > 0 {
			row.CurrentConsecutivePLDays = p.CurrentConsecutivePLDays + 1
		} else {
			row.CurrentConsecutivePLDays = 1
		}
	case pl.IsNegative():
		if p.CurrentConsecutivePLDays < 0 {
			row.CurrentConsecutivePLDays = p.CurrentConsecutivePLDays - 1
		} else {
			row.CurrentConsecutivePLDays = -1
		}
	}

	row.MaxConsecutiveProfitDays = max(p.MaxConsecutiveProfitDays, row.CurrentConsecutivePLDays)
	row.MaxConsecutiveLossDays = max(p.MaxConsecutiveLossDays, -row.CurrentConsecutivePLDays)
}

// applyDailyExtremes keeps the most extreme daily P&L and rate seen so far
func applyDailyExtremes(row, p *contracts.LedgerRow) {
	pl, rate := row.DailyProfitLoss, row.DailyPLRate

	row.MaxDailyProfit = p.MaxDailyProfit
	if pl.IsPositive() {
		row.MaxDailyProfit = fixedpoint.Max(p.MaxDailyProfit, pl)
	}
	row.MaxDailyProfitRate = p.MaxDailyProfitRate
	if rate.IsPositive() {
		row.MaxDailyProfitRate = fixedpoint.Max(p.MaxDailyProfitRate, rate)
	}

	row.MaxDailyLoss = p.MaxDailyLoss
	if pl.IsNegative() {
		row.MaxDailyLoss = fixedpoint.Min(p.MaxDailyLoss, pl)
	}
	row.MaxDailyLossRate = p.MaxDailyLossRate
	if rate.IsNegative() {
		row.MaxDailyLossRate = fixedpoint.Min(p.MaxDailyLossRate, rate)
	}
}
