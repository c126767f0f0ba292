package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/fixedpoint"
)

// Policy names accepted by config
const (
	PrincipalAdditive      = "additive"
	PrincipalRatioAdjusted = "ratio-adjusted"

	DrawdownPeakRelative = "peak-relative"
	DrawdownClamped      = "clamped"
)

// PrincipalPolicy decides how a deposit/withdrawal moves the principal
type PrincipalPolicy interface {
	Name() string
	Next(prev *contracts.LedgerRow, depositWithdrawal decimal.Decimal) decimal.Decimal
}

// DrawdownPolicy decides the money-terms drawdown of a day
type DrawdownPolicy interface {
	Name() string
	CurrentAmount(cumulative, maxCumulative decimal.Decimal) decimal.Decimal
}

// additivePrincipal: principal = prevPrincipal + depositWithdrawal
type additivePrincipal struct{}

func (additivePrincipal) Name() string { return PrincipalAdditive }

func (additivePrincipal) Next(prev *contracts.LedgerRow, dw decimal.Decimal) decimal.Decimal {
	if prev == nil {
		return fixedpoint.Money(dw)
	}
	return fixedpoint.Add(prev.Principal, dw, fixedpoint.MoneyScale, fixedpoint.HalfUp)
}

// ratioAdjustedPrincipal converts the deposit into principal units at the
// previous balance/principal ratio, so a deposit alone leaves the reference price unchanged.
type ratioAdjustedPrincipal struct{}

func (ratioAdjustedPrincipal) Name() string { return PrincipalRatioAdjusted }

func (ratioAdjustedPrincipal) Next(prev *contracts.LedgerRow, dw decimal.Decimal) decimal.Decimal {
	if prev == nil || !prev.Principal.IsPositive() || !prev.Balance.IsPositive() {
		return additivePrincipal{}.Next(prev, dw)
	}
	units := fixedpoint.Div(dw.Mul(prev.Principal), prev.Balance, fixedpoint.MoneyScale, fixedpoint.HalfUp)
	return fixedpoint.Add(prev.Principal, units, fixedpoint.MoneyScale, fixedpoint.HalfUp)
}

// peakRelativeDrawdown: cumulative - maxCumulative, never positive
type peakRelativeDrawdown struct{}

func (peakRelativeDrawdown) Name() string { return DrawdownPeakRelative }

func (peakRelativeDrawdown) CurrentAmount(cum, maxCum decimal.Decimal) decimal.Decimal {
	return fixedpoint.Sub(cum, maxCum, fixedpoint.MoneyScale, fixedpoint.HalfUp)
}

// clampedDrawdown reproduces max(cumulative - maxCumulative, 0).
// Because maxCumulative >= cumulative this is always zero.
type clampedDrawdown struct{}

func (clampedDrawdown) Name() string { return DrawdownClamped }

func (clampedDrawdown) CurrentAmount(cum, maxCum decimal.Decimal) decimal.Decimal {
	return fixedpoint.Max(fixedpoint.Sub(cum, maxCum, fixedpoint.MoneyScale, fixedpoint.HalfUp), decimal.Zero)
}

// NewPrincipalPolicy resolves a principal policy by name
func NewPrincipalPolicy(name string) (PrincipalPolicy, error) {
	switch name {
	case "", PrincipalAdditive:
		return additivePrincipal{}, nil
	case PrincipalRatioAdjusted:
		return ratioAdjustedPrincipal{}, nil
	default:
		return nil, fmt.Errorf("unknown principal policy %q", name)
	}
}

// NewDrawdownPolicy resolves a drawdown policy by name
func NewDrawdownPolicy(name string) (DrawdownPolicy, error) {
	switch name {
	case "", DrawdownPeakRelative:
		return peakRelativeDrawdown{}, nil
	case DrawdownClamped:
		return clampedDrawdown{}, nil
	default:
		return nil, fmt.Errorf("unknown drawdown policy %q", name)
	}
}
