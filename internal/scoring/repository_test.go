package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/internal/ledger"
	"github.com/wonny/sysmetic/backend/internal/monthly"
	"github.com/wonny/sysmetic/backend/internal/storage/pgtest"
)

func seedStrategy(t *testing.T, repo *ledger.Repository, id int64, pls ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.RegisterStrategy(ctx, id, "scoring"))

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	inputs := []contracts.DailyInput{{StrategyID: id, Date: start, DepositWithdrawal: decimal.NewFromInt(1000)}}
	for i, pl := range pls {
		inputs = append(inputs, contracts.DailyInput{
			StrategyID:      id,
			Date:            start.AddDate(0, 0, i+1),
			DailyProfitLoss: decimal.RequireFromString(pl),
		})
	}

	rows, err := ledger.NewEngine(nil, nil).Fold(nil, inputs)
	require.NoError(t, err)
	summaries, err := monthly.RollupAll(nil, rows)
	require.NoError(t, err)
	require.NoError(t, repo.ReplaceFrom(ctx, id, rows[0].Date, rows, summaries))
}

func TestRepository_ScoreRoundTrip(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()

	a := pgtest.StrategyID()
	b := a + 1
	pgtest.Cleanup(t, pool, a)
	pgtest.Cleanup(t, pool, b)

	rows := ledger.NewRepository(pool)
	seedStrategy(t, rows, a, "10", "20", "-5")
	seedStrategy(t, rows, b, "-10", "5", "-20")

	repo := NewRepository(pool)
	all, err := repo.ListLatestKPRatios(ctx, 1)
	require.NoError(t, err)

	var ours []contracts.KPRatioEntry
	for _, e := range all {
		if e.StrategyID == a || e.StrategyID == b {
			ours = append(ours, e)
		}
	}
	require.Len(t, ours, 2)
	assert.True(t, ours[0].Date.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)))

	board := Score(ours, time.Now())
	require.NoError(t, repo.SaveScores(ctx, board.Scores))

	saved, err := repo.ListScores(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, a, saved[0].StrategyID)
	assert.True(t, board.Scores[0].Score.Equal(saved[0].Score))

	latest, err := rows.GetLatestRow(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, board.Scores[0].Score.Equal(latest.SMScore))

	// 엄격한 최소 운용일수로는 제외
	none, err := repo.ListLatestKPRatios(ctx, 10_000)
	require.NoError(t, err)
	for _, e := range none {
		assert.NotEqual(t, a, e.StrategyID)
	}
}
