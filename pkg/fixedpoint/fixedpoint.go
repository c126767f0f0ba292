package fixedpoint

import (
	"github.com/shopspring/decimal"
)

// Scales used by ledger fields
// ⭐ SSOT: 필드별 소수 자릿수는 여기서만 정의
const (
	MoneyScale        int32 = 4  // 금액 (원금, 잔고, 손익)
	RateScale         int32 = 4  // 저장되는 비율/수익률
	IntermediateScale int32 = 10 // 최종 반올림 전 중간 계산 정밀도
	ScoreScale        int32 = 2  // SM-Score
)

// RoundingMode selects how a result is brought to its target scale
type RoundingMode int

const (
	// HalfUp rounds half away from zero (0.00005 -> 0.0001, -0.00005 -> -0.0001)
	HalfUp RoundingMode = iota
	// Down truncates toward zero
	Down
)

// Base is the reference price index origin
var Base = decimal.NewFromInt(1000)

// Hundred is used for percent conversions
var Hundred = decimal.NewFromInt(100)

// Round brings a to the given scale using mode
func Round(a decimal.Decimal, scale int32, mode RoundingMode) decimal.Decimal {
	switch mode {
	case Down:
		return a.Truncate(scale)
	default:
		// decimal.Round is half away from zero, which matches HALF_UP
		return a.Round(scale)
	}
}

// Add returns a + b at the given scale
func Add(a, b decimal.Decimal, scale int32, mode RoundingMode) decimal.Decimal {
	return Round(a.Add(b), scale, mode)
}

// Sub returns a - b at the given scale
func Sub(a, b decimal.Decimal, scale int32, mode RoundingMode) decimal.Decimal {
	return Round(a.Sub(b), scale, mode)
}

// Mul returns a * b at the given scale
func Mul(a, b decimal.Decimal, scale int32, mode RoundingMode) decimal.Decimal {
	return Round(a.Mul(b), scale, mode)
}

// Div returns a / b at the given scale.
// A zero denominator yields zero: "no data yet" is not an error here.
func Div(a, b decimal.Decimal, scale int32, mode RoundingMode) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	// QuoRem truncates toward zero; the remainder decides the half-up step exactly
	q, r := a.QuoRem(b, scale)
	if mode == Down || r.IsZero() {
		return q
	}
	unit := decimal.New(1, -scale)
	if r.Abs().Mul(decimal.NewFromInt(2)).GreaterThanOrEqual(b.Abs().Mul(unit)) {
		if a.Sign()*b.Sign() < 0 {
			return q.Sub(unit)
		}
		return q.Add(unit)
	}
	return q
}

// DivPositive is Div for formulas that need a strictly positive denominator
func DivPositive(a, b decimal.Decimal, scale int32, mode RoundingMode) decimal.Decimal {
	if !b.IsPositive() {
		return decimal.Zero
	}
	return Div(a, b, scale, mode)
}

// Max returns the larger of a and b
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Money rounds a monetary value half-up to MoneyScale
func Money(a decimal.Decimal) decimal.Decimal {
	return Round(a, MoneyScale, HalfUp)
}

// Rate rounds a persisted rate half-up to RateScale
func Rate(a decimal.Decimal) decimal.Decimal {
	return Round(a, RateScale, HalfUp)
}

// FromFloat converts a float64 intermediate (stddev, CDF) into a decimal at
// IntermediateScale so later roundings are deterministic.
func FromFloat(f float64) decimal.Decimal {
	return Round(decimal.NewFromFloat(f), IntermediateScale, HalfUp)
}
