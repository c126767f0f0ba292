package ledger

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/sysmetic/backend/internal/contracts"
)

func day(s string) time.Time {
	t, err := time.Parse(contracts.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func input(date string, pl, dw string) contracts.DailyInput {
	return contracts.DailyInput{
		StrategyID:        7,
		Date:              day(date),
		DailyProfitLoss:   dec(pl),
		DepositWithdrawal: dec(dw),
	}
}

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "%s: want %s, got %s", field, want, got.String())
}

func scenarioRows(t *testing.T) []*contracts.LedgerRow {
	t.Helper()
	rows, err := NewEngine(nil, nil).Fold(nil, []contracts.DailyInput{
		input("2024-01-02", "0", "1000"),
		input("2024-01-03", "150", "0"),
		input("2024-01-04", "-300", "0"),
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	return rows
}

func TestEngine_FirstDay(t *testing.T) {
	rows := scenarioRows(t)
	a := rows[0]

	assertDec(t, "1000", a.Principal, "principal")
	assertDec(t, "1000", a.Balance, "balance")
	assertDec(t, "1000", a.ReferencePrice, "referencePrice")
	assertDec(t, "0", a.CumulativeProfitLossRate, "cumulativeProfitLossRate")
	assertDec(t, "0", a.DailyPLRate, "dailyPlRate")
	assertDec(t, "1000", a.CumulativeDepositAmount, "cumulativeDepositAmount")
	assert.Equal(t, 0, a.TradingDays)
	assert.Equal(t, 1, a.StrategyOperationDays)
	assertDec(t, "0", a.WinRate, "winRate")
}

func TestEngine_SecondDay(t *testing.T) {
	b := scenarioRows(t)[1]

	assertDec(t, "1150", b.Balance, "balance")
	assertDec(t, "1000", b.Principal, "principal")
	assertDec(t, "1150", b.ReferencePrice, "referencePrice")
	assertDec(t, "15", b.DailyPLRate, "dailyPlRate")
	assertDec(t, "150", b.CumulativeProfitLoss, "cumulativeProfitLoss")
	assertDec(t, "0.15", b.CumulativeProfitLossRate, "cumulativeProfitLossRate")
	assertDec(t, "150", b.MaxCumulativeProfitLoss, "maxCumulativeProfitLoss")
	assertDec(t, "1", b.WinRate, "winRate")
	assert.Equal(t, 1, b.CurrentConsecutivePLDays)
	assert.Equal(t, 2, b.StrategyOperationDays)
}

func TestEngine_LossAfterGain(t *testing.T) {
	c := scenarioRows(t)[2]

	assertDec(t, "850", c.Balance, "balance")
	assertDec(t, "-150", c.CumulativeProfitLoss, "cumulativeProfitLoss")
	assertDec(t, "150", c.MaxCumulativeProfitLoss, "maxCumulativeProfitLoss")
	assert.True(t, c.CurrentDrawdownRate.IsNegative(), "currentDrawdownRate should be negative")
	// (850 - 1150) / 850
	assertDec(t, "-0.3529", c.CurrentDrawdownRate, "currentDrawdownRate")
	assertDec(t, "-300", c.CurrentDrawdownAmount, "currentDrawdownAmount")
	assertDec(t, "-300", c.MaxDrawdownAmount, "maxDrawdownAmount")
	assert.Equal(t, 1, c.DaysSincePeak)
	assert.Equal(t, 1, c.DDDay)
	assert.Equal(t, -1, c.CurrentConsecutivePLDays)
	assert.Equal(t, 1, c.MaxConsecutiveLossDays)
	assert.Equal(t, 1, c.MaxConsecutiveProfitDays)
	assertDec(t, "0.5", c.WinRate, "winRate")
	assertDec(t, "0.5", c.ProfitFactor, "profitFactor")
	assertDec(t, "-300", c.AverageLoss, "averageLoss")
	assertDec(t, "-300", c.MaxDailyLoss, "maxDailyLoss")
	assertDec(t, "150", c.MaxDailyProfit, "maxDailyProfit")
	// -(-150) / 300
	assertDec(t, "0.5", c.ROA, "roa")
	assertDec(t, "0", c.KPRatio, "kpRatio")
}

func TestEngine_RejectsOutOfOrder(t *testing.T) {
	e := NewEngine(nil, nil)
	prev, err := e.Next(nil, input("2024-01-03", "0", "1000"), History{})
	require.NoError(t, err)

	_, err = e.Next(prev, input("2024-01-03", "10", "0"), History{})
	assert.ErrorIs(t, err, contracts.ErrOutOfOrderDay)

	other := input("2024-01-04", "10", "0")
	other.StrategyID = 99
	_, err = e.Next(prev, other, History{})
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}

func TestEngine_ZeroPrincipal(t *testing.T) {
	row, err := NewEngine(nil, nil).Next(nil, input("2024-01-02", "0", "0"), History{})
	require.NoError(t, err)

	assertDec(t, "0", row.ReferencePrice, "referencePrice")
	assertDec(t, "0", row.DailyPLRate, "dailyPlRate")
	assertDec(t, "0", row.CumulativeProfitLossRate, "cumulativeProfitLossRate")
	assertDec(t, "0", row.CurrentDrawdownRate, "currentDrawdownRate")
	assertDec(t, "0", row.CoefficientOfVariation, "coefficientOfVariation")
	assertDec(t, "0", row.SharpRatio, "sharpRatio")
}

func TestEngine_DrawdownAgainstPreviousDay(t *testing.T) {
	rows, err := NewEngine(nil, nil).Fold(nil, []contracts.DailyInput{
		input("2024-01-02", "0", "1000"),
		input("2024-01-03", "-100", "0"),
		input("2024-01-04", "50", "0"),
	})
	require.NoError(t, err)

	// (900 - 1000) / 900
	assertDec(t, "-0.1111", rows[1].CurrentDrawdownRate, "loss day")
	assert.Equal(t, 1, rows[1].DDDay)

	// 950 > 900: 부분 회복일은 낙폭 아님
	recovery := rows[2]
	assertDec(t, "0", recovery.CurrentDrawdownRate, "partial recovery")
	assert.Equal(t, 0, recovery.DDDay)
	assertDec(t, "0", recovery.MaxDDInRate, "maxDdInRate")
	assertDec(t, "-0.1111", recovery.MaxDrawdownRate, "maxDrawdownRate keeps the worst day")
	assertDec(t, "1000", recovery.PeakReferencePrice, "peakReferencePrice")
}

func TestEngine_FirstDayLossIsNotDrawdown(t *testing.T) {
	row, err := NewEngine(nil, nil).Next(nil, input("2024-01-02", "-100", "1000"), History{})
	require.NoError(t, err)

	assertDec(t, "900", row.ReferencePrice, "referencePrice")
	assertDec(t, "-10", row.DailyPLRate, "dailyPlRate")
	assertDec(t, "0", row.CurrentDrawdownRate, "currentDrawdownRate")
	assertDec(t, "0", row.MaxDrawdownRate, "maxDrawdownRate")
	assert.Equal(t, 0, row.DDDay)
}

func TestEngine_DispersionAndKPRatio(t *testing.T) {
	rows, err := NewEngine(nil, nil).Fold(nil, []contracts.DailyInput{
		input("2024-01-02", "0", "1000"),
		input("2024-01-03", "100", "0"),
		input("2024-01-04", "-50", "0"),
		input("2024-01-05", "150", "0"),
	})
	require.NoError(t, err)

	// (1050 - 1100) / 1050
	assertDec(t, "-0.0476", rows[2].CurrentDrawdownRate, "day 3 drawdown")
	assert.Equal(t, 1, rows[2].DDDay)

	last := rows[3]
	assert.Equal(t, 3, last.TradingDays)
	assertDec(t, "125", last.AverageProfit, "averageProfit")
	assertDec(t, "0.2", last.CumulativeProfitLossRate, "cumulativeProfitLossRate")

	// 일손익 [0, 100, -50, 150]: 모표준편차 sqrt(6250) = 79.0569415042
	// 79.0569415042 / 125 = 0.6324555320 -> x100
	assertDec(t, "63.2456", last.CoefficientOfVariation, "coefficientOfVariation")
	// 125 / 79.0569415042
	assertDec(t, "1.5811", last.SharpRatio, "sharpRatio")
	// 0.2 / (0.0476 x sqrt(1/3)) = 0.2 / 0.0274818728
	assertDec(t, "7.2775", last.KPRatio, "kpRatio")
}

func randomInputs(n int, seed int64) []contracts.DailyInput {
	r := rand.New(rand.NewSource(seed))
	inputs := make([]contracts.DailyInput, 0, n)
	date := day("2023-01-02")
	for i := 0; i < n; i++ {
		pl := decimal.NewFromInt(int64(r.Intn(400) - 180))
		dw := decimal.Zero
		switch {
		case i == 0:
			dw = decimal.NewFromInt(10000)
		case r.Intn(15) == 0:
			dw = decimal.NewFromInt(int64(r.Intn(3000) - 1000))
		}
		if r.Intn(10) == 0 {
			pl = decimal.Zero
		}
		inputs = append(inputs, contracts.DailyInput{StrategyID: 7, Date: date, DailyProfitLoss: pl, DepositWithdrawal: dw})
		date = date.AddDate(0, 0, 1)
		for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			date = date.AddDate(0, 0, 1)
		}
	}
	return inputs
}

func TestEngine_Invariants(t *testing.T) {
	rows, err := NewEngine(nil, nil).Fold(nil, randomInputs(400, 42))
	require.NoError(t, err)

	one := decimal.NewFromInt(1)
	for i, row := range rows {
		assert.True(t, row.MaxCumulativeProfitLoss.GreaterThanOrEqual(row.CumulativeProfitLoss), "day %d", i)
		if i > 0 {
			assert.True(t, row.MaxCumulativeProfitLoss.GreaterThanOrEqual(rows[i-1].MaxCumulativeProfitLoss), "day %d", i)
			assert.True(t, row.PeakReferencePrice.GreaterThanOrEqual(rows[i-1].PeakReferencePrice), "day %d", i)
			assert.True(t, row.MaxDailyProfit.GreaterThanOrEqual(rows[i-1].MaxDailyProfit), "day %d", i)
			assert.True(t, row.MaxDailyLoss.LessThanOrEqual(rows[i-1].MaxDailyLoss), "day %d", i)
		}
		assert.False(t, row.CurrentDrawdownRate.IsPositive(), "day %d", i)
		assert.False(t, row.MaxDrawdownRate.IsPositive(), "day %d", i)
		assert.True(t, row.MaxDrawdownRate.LessThanOrEqual(row.CurrentDrawdownRate), "day %d", i)
		if row.Peak.IsPositive() {
			assert.False(t, row.CurrentDrawdownAmount.IsPositive(), "day %d", i)
		}
		if row.TradingDays == 0 {
			assert.True(t, row.WinRate.IsZero(), "day %d", i)
		}
		assert.False(t, row.WinRate.IsNegative(), "day %d", i)
		assert.True(t, row.WinRate.LessThanOrEqual(one), "day %d", i)
		assert.Equal(t, i+1, row.StrategyOperationDays)
	}

	last := rows[len(rows)-1]
	assert.False(t, last.CoefficientOfVariation.IsZero())
	assert.False(t, last.SharpRatio.IsZero())
	assert.False(t, last.RecentOneYearReturn.IsZero(), "400 business days span more than a year")
}

func TestEngine_Idempotent(t *testing.T) {
	inputs := randomInputs(120, 7)
	first, err := NewEngine(nil, nil).Fold(nil, inputs)
	require.NoError(t, err)
	second, err := NewEngine(nil, nil).Fold(nil, inputs)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i], second[i], "row %d", i)
	}
}

func TestEngine_FoldMatchesStepwise(t *testing.T) {
	inputs := randomInputs(60, 3)
	e := NewEngine(nil, nil)

	all, err := e.Fold(nil, inputs)
	require.NoError(t, err)

	// resuming after 25 rows gives the same tail
	tail, err := e.Fold(all[:25], inputs[25:])
	require.NoError(t, err)
	assert.Equal(t, all[25:], tail)
}

func TestPrincipalPolicies(t *testing.T) {
	ratio, err := NewPrincipalPolicy(PrincipalRatioAdjusted)
	require.NoError(t, err)

	prev := &contracts.LedgerRow{Principal: dec("1000"), Balance: dec("1250")}

	additive, err := NewPrincipalPolicy("")
	require.NoError(t, err)
	assertDec(t, "1500", additive.Next(prev, dec("500")), "additive")
	// 500 * 1000 / 1250
	assertDec(t, "1400", ratio.Next(prev, dec("500")), "ratio-adjusted")
	assertDec(t, "500", ratio.Next(nil, dec("500")), "ratio-adjusted first day")

	_, err = NewPrincipalPolicy("bogus")
	assert.Error(t, err)
}

func TestDrawdownPolicies(t *testing.T) {
	clamped, err := NewDrawdownPolicy(DrawdownClamped)
	require.NoError(t, err)

	rows, err := NewEngine(nil, clamped).Fold(nil, []contracts.DailyInput{
		input("2024-01-02", "0", "1000"),
		input("2024-01-03", "150", "0"),
		input("2024-01-04", "-300", "0"),
	})
	require.NoError(t, err)

	c := rows[2]
	assertDec(t, "0", c.CurrentDrawdownAmount, "clamped currentDrawdownAmount")
	assertDec(t, "0", c.MaxDrawdownAmount, "clamped maxDrawdownAmount")
	assertDec(t, "0", c.ROA, "roa without drawdown amount")
	// rate-based drawdown is independent of the amount policy
	assertDec(t, "-0.3529", c.CurrentDrawdownRate, "currentDrawdownRate")

	_, err = NewDrawdownPolicy("bogus")
	assert.Error(t, err)
}

func TestStreaks(t *testing.T) {
	rows, err := NewEngine(nil, nil).Fold(nil, []contracts.DailyInput{
		input("2024-01-02", "10", "1000"),
		input("2024-01-03", "10", "0"),
		input("2024-01-04", "10", "0"),
		input("2024-01-05", "-5", "0"),
		input("2024-01-08", "-5", "0"),
		input("2024-01-09", "0", "0"),
		input("2024-01-10", "3", "0"),
	})
	require.NoError(t, err)

	streak := make([]int, len(rows))
	for i, r := range rows {
		streak[i] = r.CurrentConsecutivePLDays
	}
	assert.Equal(t, []int{1, 2, 3, -1, -2, 0, 1}, streak)

	last := rows[len(rows)-1]
	assert.Equal(t, 3, last.MaxConsecutiveProfitDays)
	assert.Equal(t, 2, last.MaxConsecutiveLossDays)
	assert.Equal(t, 6, last.TradingDays)
	assert.Equal(t, 7, last.StrategyOperationDays)
}

func TestDrawdownSums(t *testing.T) {
	points := []contracts.DrawdownPoint{
		{DDDay: 1, MaxDDInRate: dec("-0.1")},
		{DDDay: 1, MaxDDInRate: dec("-0.2")},
		{DDDay: 0, MaxDDInRate: decimal.Zero},
		{DDDay: 1, MaxDDInRate: dec("-0.05")},
	}

	days, sum := drawdownSums(points)
	assert.Equal(t, 3, days)
	assertDec(t, "0.25", sum, "sum")

	// 0.5 / (0.25 * sqrt(3/10))
	assertDec(t, "3.6515", kpRatio(dec("0.5"), 10, points), "kpRatio")
	assertDec(t, "0", kpRatio(dec("-0.1"), 10, points), "negative return")
	assertDec(t, "0", kpRatio(dec("0.5"), 10, nil), "no drawdown")
	assertDec(t, "0", kpRatio(dec("0.5"), 0, points), "no trading days")
}

func TestRecentOneYearReturn(t *testing.T) {
	e := NewEngine(nil, nil)
	prev, err := e.Next(nil, input("2023-01-02", "0", "1000"), History{})
	require.NoError(t, err)

	ago := dec("800")
	row, err := e.Next(prev, input("2024-01-02", "200", "0"), History{BalanceYearAgo: &ago})
	require.NoError(t, err)
	// 1200 / 800 - 1
	assertDec(t, "0.5", row.RecentOneYearReturn, "recentOneYearReturn")

	zero := decimal.Zero
	row, err = e.Next(prev, input("2024-01-02", "200", "0"), History{BalanceYearAgo: &zero})
	require.NoError(t, err)
	assertDec(t, "0", row.RecentOneYearReturn, "non-positive historical balance")
}

func TestBalanceOnOrBefore(t *testing.T) {
	rows := []*contracts.LedgerRow{
		{Date: day("2024-01-02"), Balance: dec("100")},
		{Date: day("2024-01-05"), Balance: dec("200")},
	}

	assert.Nil(t, BalanceOnOrBefore(rows, day("2024-01-01")))
	assertDec(t, "100", *BalanceOnOrBefore(rows, day("2024-01-04")), "between")
	assertDec(t, "200", *BalanceOnOrBefore(rows, day("2024-01-05")), "exact")
}
