package scoring

import (
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/fixedpoint"
)

var hundred = decimal.NewFromInt(100)

// Score computes the SM-Score of every entry against the whole population.
// smScore = round(Φ((kp - mean) / stddev) × 100, 2), all zero when stddev is 0.
// ⭐ SSOT: SM-Score 계산은 여기서만
func Score(entries []contracts.KPRatioEntry, computedAt time.Time) *contracts.ScoreBoard {
	board := &contracts.ScoreBoard{
		ComputedAt: computedAt,
		Scores:     make([]contracts.SMScore, 0, len(entries)),
	}
	if len(entries) == 0 {
		return board
	}

	xs := make([]float64, len(entries))
	for i, e := range entries {
		xs[i] = e.KPRatio.InexactFloat64()
	}

	// 모집단 표준편차 (N으로 나눔)
	mean := stat.Mean(xs, nil)
	sd := math.Sqrt(stat.PopVariance(xs, nil))
	degenerate := sd == 0 || identical(entries)
	board.Mean = mean
	if !degenerate {
		board.StdDev = sd
	}

	for i, e := range entries {
		s := contracts.SMScore{
			StrategyID: e.StrategyID,
			Date:       e.Date,
			KPRatio:    e.KPRatio,
			Score:      decimal.Zero,
		}
		if !degenerate {
			s.ZScore = (xs[i] - mean) / sd
			p := fixedpoint.FromFloat(distuv.UnitNormal.CDF(s.ZScore))
			s.Score = fixedpoint.Mul(p, hundred, fixedpoint.ScoreScale, fixedpoint.HalfUp)
		}
		board.Scores = append(board.Scores, s)
	}

	slices.SortFunc(board.Scores, func(a, b contracts.SMScore) int {
		switch {
		case a.StrategyID < b.StrategyID:
			return -1
		case a.StrategyID > b.StrategyID:
			return 1
		}
		return 0
	})

	return board
}

// identical reports whether every KP-Ratio is exactly equal. float64 mean of
// equal decimals like 0.1 can leave a tiny non-zero variance.
func identical(entries []contracts.KPRatioEntry) bool {
	for _, e := range entries[1:] {
		if !e.KPRatio.Equal(entries[0].KPRatio) {
			return false
		}
	}
	return true
}
