package ledger

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/fixedpoint"
)

// stdDev returns the population standard deviation of the series at IntermediateScale
func stdDev(series []decimal.Decimal) decimal.Decimal {
	if len(series) < 2 {
		return decimal.Zero
	}
	xs := make([]float64, len(series))
	for i, v := range series {
		xs[i] = v.InexactFloat64()
	}
	return fixedpoint.FromFloat(math.Sqrt(stat.PopVariance(xs, nil)))
}

// coefficientOfVariation = stddev / averageProfit * 100
func coefficientOfVariation(sd, averageProfit decimal.Decimal) decimal.Decimal {
	ratio := fixedpoint.DivPositive(sd, averageProfit, fixedpoint.IntermediateScale, fixedpoint.HalfUp)
	return fixedpoint.Mul(ratio, fixedpoint.Hundred, fixedpoint.RateScale, fixedpoint.HalfUp)
}

// sharpRatio = averageProfit / stddev
func sharpRatio(sd, averageProfit decimal.Decimal) decimal.Decimal {
	return fixedpoint.DivPositive(averageProfit, sd, fixedpoint.RateScale, fixedpoint.HalfUp)
}

// drawdownSums folds the (ddDay, maxDdInRate) series into the total number of
// drawdown days and the sum of each drawdown segment's deepest rate (absolute).
func drawdownSums(points []contracts.DrawdownPoint) (int, decimal.Decimal) {
	days := 0
	sum := decimal.Zero
	segment := decimal.Zero
	inSegment := false

	for _, p := range points {
		if p.DDDay != 0 {
			days += p.DDDay
			segment = fixedpoint.Min(segment, p.MaxDDInRate)
			inSegment = true
			continue
		}
		if inSegment {
			sum = sum.Add(segment.Abs())
			segment = decimal.Zero
			inSegment = false
		}
	}
	if inSegment {
		sum = sum.Add(segment.Abs())
	}
	return days, sum
}

// kpRatio = cumulativeRate / (Σ maxDdInRate × sqrt(Σ ddDay / tradingDays))
func kpRatio(cumulativeRate decimal.Decimal, tradingDays int, points []contracts.DrawdownPoint) decimal.Decimal {
	if !cumulativeRate.IsPositive() || tradingDays <= 0 {
		return decimal.Zero
	}
	days, sumDD := drawdownSums(points)
	if days == 0 || sumDD.IsZero() {
		return decimal.Zero
	}
	durationWeight := fixedpoint.FromFloat(math.Sqrt(float64(days) / float64(tradingDays)))
	denominator := fixedpoint.Mul(sumDD, durationWeight, fixedpoint.IntermediateScale, fixedpoint.HalfUp)
	return fixedpoint.DivPositive(cumulativeRate, denominator, fixedpoint.RateScale, fixedpoint.HalfUp)
}
