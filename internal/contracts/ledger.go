package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for trading dates
const DateLayout = "2006-01-02"

// DailyInput is one author-supplied data point for a strategy
// ⭐ SSOT: 일간 입력 구조
type DailyInput struct {
	StrategyID        int64           `json:"strategyId"`
	Date              time.Time       `json:"date"`
	DailyProfitLoss   decimal.Decimal `json:"dailyProfitLoss"`   // 일손익
	DepositWithdrawal decimal.Decimal `json:"depositWithdrawal"` // 입출금 (+입금 / -출금)
}

// LedgerRow is the full metric set of one strategy on one trading day.
// Rows are immutable once written; corrections replay the recurrence forward.
// ⭐ SSOT: 일간 분석 행 구조 (export 필드명 계약)
type LedgerRow struct {
	StrategyID int64     `json:"strategyId"`
	Date       time.Time `json:"date"`

	// 입력
	DailyProfitLoss   decimal.Decimal `json:"dailyProfitLoss"`
	DepositWithdrawal decimal.Decimal `json:"depositWithdrawal"`

	// 자본
	Principal      decimal.Decimal `json:"principal"`      // 원금
	Balance        decimal.Decimal `json:"balance"`        // 잔고
	ReferencePrice decimal.Decimal `json:"referencePrice"` // 기준가 (1000 시작)

	// 누적 손익
	CumulativeProfitLoss     decimal.Decimal `json:"cumulativeProfitLoss"`
	CumulativeProfitLossRate decimal.Decimal `json:"cumulativeProfitLossRate"`
	MaxCumulativeProfitLoss  decimal.Decimal `json:"maxCumulativeProfitLoss"`
	Peak                     decimal.Decimal `json:"peak"`
	PeakRate                 decimal.Decimal `json:"peakRate"`
	PeakReferencePrice       decimal.Decimal `json:"peakReferencePrice"`

	// 낙폭
	CurrentDrawdownAmount decimal.Decimal `json:"currentDrawdownAmount"`
	CurrentDrawdownRate   decimal.Decimal `json:"currentDrawdownRate"`
	MaxDrawdownAmount     decimal.Decimal `json:"maxDrawdownAmount"`
	MaxDrawdownRate       decimal.Decimal `json:"maxDrawdownRate"`
	DDDay                 int             `json:"ddDay"`       // 1 if in drawdown today
	MaxDDInRate           decimal.Decimal `json:"maxDdInRate"` // deepest rate of the current drawdown segment

	// 매매 통계
	TradingDays     int             `json:"tradingDays"`
	TotalProfitDays int             `json:"totalProfitDays"`
	TotalLossDays   int             `json:"totalLossDays"`
	TotalProfit     decimal.Decimal `json:"totalProfit"`
	TotalLoss       decimal.Decimal `json:"totalLoss"`
	AverageProfit   decimal.Decimal `json:"averageProfit"`
	AverageLoss     decimal.Decimal `json:"averageLoss"`
	WinRate         decimal.Decimal `json:"winRate"`
	ProfitFactor    decimal.Decimal `json:"profitFactor"`
	ROA             decimal.Decimal `json:"roa"`

	// 일간 극값
	DailyPLRate        decimal.Decimal `json:"dailyPlRate"`
	MaxDailyProfit     decimal.Decimal `json:"maxDailyProfit"`
	MaxDailyProfitRate decimal.Decimal `json:"maxDailyProfitRate"`
	MaxDailyLoss       decimal.Decimal `json:"maxDailyLoss"`
	MaxDailyLossRate   decimal.Decimal `json:"maxDailyLossRate"`

	// 연속 손익
	CurrentConsecutivePLDays int `json:"currentConsecutivePlDays"`
	MaxConsecutiveProfitDays int `json:"maxConsecutiveProfitDays"`
	MaxConsecutiveLossDays   int `json:"maxConsecutiveLossDays"`

	// 위험 지표
	CoefficientOfVariation decimal.Decimal `json:"coefficientOfVariation"`
	SharpRatio             decimal.Decimal `json:"sharpRatio"`
	KPRatio                decimal.Decimal `json:"kpRatio"`
	SMScore                decimal.Decimal `json:"smScore"` // batch only

	// 경과 기간
	DaysSincePeak         int             `json:"daysSincePeak"`
	RecentOneYearReturn   decimal.Decimal `json:"recentOneYearReturn"`
	StrategyOperationDays int             `json:"strategyOperationDays"`

	// 입출금 누적
	CumulativeDepositAmount  decimal.Decimal `json:"cumulativeDepositAmount"`
	CumulativeWithdrawAmount decimal.Decimal `json:"cumulativeWithdrawAmount"`
	CumulativeDepWdPrice     decimal.Decimal `json:"cumulativeDepWdPrice"`
}

// Input returns the raw inputs the row was computed from
func (r *LedgerRow) Input() DailyInput {
	return DailyInput{
		StrategyID:        r.StrategyID,
		Date:              r.Date,
		DailyProfitLoss:   r.DailyProfitLoss,
		DepositWithdrawal: r.DepositWithdrawal,
	}
}

// DrawdownPoint is the per-day pair the KP-Ratio is built from
type DrawdownPoint struct {
	DDDay       int
	MaxDDInRate decimal.Decimal
}

// MonthlySummaryRow is the roll-up of one strategy for one calendar month
// ⭐ SSOT: 월간 분석 행 구조
type MonthlySummaryRow struct {
	StrategyID int64 `json:"strategyId"`
	Year       int   `json:"year"`
	Month      int   `json:"month"`

	AveragePrincipal     decimal.Decimal `json:"averagePrincipal"`     // 월평균 원금
	AverageBalance       decimal.Decimal `json:"averageBalance"`       // 월평균 잔고
	DepositWithdrawal    decimal.Decimal `json:"depositWithdrawal"`    // 월 입출금 합계
	ProfitLoss           decimal.Decimal `json:"profitLoss"`           // 월 손익
	MonthlyReturn        decimal.Decimal `json:"monthlyReturn"`        // 월 수익률
	CumulativeProfitLoss decimal.Decimal `json:"cumulativeProfitLoss"` // 누적 손익
	CumulativeReturn     decimal.Decimal `json:"cumulativeReturn"`     // 누적 수익률

	// fold state
	Days                int             `json:"days"`
	PrincipalSum        decimal.Decimal `json:"principalSum"`
	BalanceSum          decimal.Decimal `json:"balanceSum"`
	FirstReferencePrice decimal.Decimal `json:"firstReferencePrice"`
	LastReferencePrice  decimal.Decimal `json:"lastReferencePrice"`
}

// MonthKey identifies a calendar month
type MonthKey struct {
	Year  int
	Month int
}

// MonthOf returns the calendar month of t
func MonthOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: int(t.Month())}
}

// Before reports whether k is an earlier month than o
func (k MonthKey) Before(o MonthKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	return k.Month < o.Month
}

// Key returns the month key of the summary
func (m *MonthlySummaryRow) Key() MonthKey {
	return MonthKey{Year: m.Year, Month: m.Month}
}

// KPRatioEntry is one member of a scoring population
type KPRatioEntry struct {
	StrategyID int64           `json:"strategyId"`
	Date       time.Time       `json:"date"` // date of the latest row
	KPRatio    decimal.Decimal `json:"kpRatio"`
}

// SMScore is the scoring result for one strategy
type SMScore struct {
	StrategyID int64           `json:"strategyId"`
	Date       time.Time       `json:"date"`
	KPRatio    decimal.Decimal `json:"kpRatio"`
	ZScore     float64         `json:"zScore"`
	Score      decimal.Decimal `json:"smScore"`
}

// ScoreBoard is the result of one full scoring pass
type ScoreBoard struct {
	ComputedAt time.Time `json:"computedAt"`
	Mean       float64   `json:"mean"`
	StdDev     float64   `json:"stdDev"`
	Scores     []SMScore `json:"scores"`
}
