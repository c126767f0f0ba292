package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/logger"
)

var scoredAt = time.Date(2025, 1, 3, 1, 0, 0, 0, time.UTC)

func population(kps ...string) []contracts.KPRatioEntry {
	entries := make([]contracts.KPRatioEntry, len(kps))
	for i, kp := range kps {
		entries[i] = contracts.KPRatioEntry{
			StrategyID: int64(i + 1),
			Date:       time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			KPRatio:    decimal.RequireFromString(kp),
		}
	}
	return entries
}

func scoreStrings(board *contracts.ScoreBoard) []string {
	out := make([]string, len(board.Scores))
	for i, s := range board.Scores {
		out[i] = s.Score.StringFixed(2)
	}
	return out
}

func TestScore_IdenticalPopulation(t *testing.T) {
	board := Score(population("1.0", "1.0", "1.0"), scoredAt)

	require.Len(t, board.Scores, 3)
	assert.Equal(t, []string{"0.00", "0.00", "0.00"}, scoreStrings(board))
	assert.Zero(t, board.StdDev)
}

func TestScore_IdenticalInexactPopulation(t *testing.T) {
	board := Score(population("0.1", "0.1", "0.1"), scoredAt)
	assert.Equal(t, []string{"0.00", "0.00", "0.00"}, scoreStrings(board))
}

func TestScore_TwoStrategies(t *testing.T) {
	board := Score(population("0.5", "1.5"), scoredAt)

	assert.InDelta(t, 1.0, board.Mean, 1e-12)
	assert.InDelta(t, 0.5, board.StdDev, 1e-12)
	assert.InDelta(t, -1.0, board.Scores[0].ZScore, 1e-12)
	assert.InDelta(t, 1.0, board.Scores[1].ZScore, 1e-12)
	assert.Equal(t, []string{"15.87", "84.13"}, scoreStrings(board))
	assert.Equal(t, scoredAt, board.ComputedAt)
}

func TestScore_SingleAndEmpty(t *testing.T) {
	assert.Empty(t, Score(nil, scoredAt).Scores)

	board := Score(population("2.3"), scoredAt)
	require.Len(t, board.Scores, 1)
	assert.True(t, board.Scores[0].Score.IsZero())
}

func TestScore_SortedByStrategy(t *testing.T) {
	entries := population("0.2", "0.9", "0.4")
	entries[0].StrategyID, entries[2].StrategyID = 30, 10

	board := Score(entries, scoredAt)
	ids := []int64{board.Scores[0].StrategyID, board.Scores[1].StrategyID, board.Scores[2].StrategyID}
	assert.Equal(t, []int64{2, 10, 30}, ids)

	// 점수는 KP-Ratio 순서를 보존
	byID := map[int64]decimal.Decimal{}
	for _, s := range board.Scores {
		byID[s.StrategyID] = s.Score
		assert.True(t, s.Score.GreaterThanOrEqual(decimal.Zero) && s.Score.LessThanOrEqual(hundred))
	}
	assert.True(t, byID[30].LessThan(byID[10]))
	assert.True(t, byID[10].LessThan(byID[2]))
}

// fakeScoreRepo records what a pass committed
type fakeScoreRepo struct {
	entries []contracts.KPRatioEntry
	readErr error
	saveErr error
	saved   [][]contracts.SMScore
}

func (f *fakeScoreRepo) ListLatestKPRatios(ctx context.Context, minOperationDays int) ([]contracts.KPRatioEntry, error) {
	return f.entries, f.readErr
}

func (f *fakeScoreRepo) SaveScores(ctx context.Context, scores []contracts.SMScore) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, scores)
	return nil
}

func (f *fakeScoreRepo) ListScores(ctx context.Context) ([]contracts.SMScore, error) {
	if len(f.saved) == 0 {
		return nil, nil
	}
	return f.saved[len(f.saved)-1], nil
}

type recordingSink struct {
	events []contracts.Event
}

func (r *recordingSink) Publish(ctx context.Context, ev contracts.Event) {
	r.events = append(r.events, ev)
}

func TestBatchScorer_Run(t *testing.T) {
	repo := &fakeScoreRepo{entries: population("0.5", "1.5")}
	sink := &recordingSink{}

	b := NewBatchScorer(repo, 1, logger.NewNop())
	b.SetEventSink(sink)

	board, err := b.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, repo.saved, 1)
	assert.Equal(t, board.Scores, repo.saved[0])

	require.Len(t, sink.events, 1)
	assert.Equal(t, contracts.EventScoresRefreshed, sink.events[0].Type)
}

func TestBatchScorer_AbortsOnIncompletePopulation(t *testing.T) {
	repo := &fakeScoreRepo{readErr: errors.New("connection reset")}
	sink := &recordingSink{}

	b := NewBatchScorer(repo, 1, logger.NewNop())
	b.SetEventSink(sink)

	_, err := b.Run(context.Background())
	assert.ErrorIs(t, err, contracts.ErrIncompletePopulation)
	assert.Empty(t, repo.saved)
	assert.Empty(t, sink.events)
}

func TestBatchScorer_CancelledBeforeCommit(t *testing.T) {
	repo := &fakeScoreRepo{entries: population("0.5", "1.5")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBatchScorer(repo, 1, logger.NewNop()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, repo.saved)
}

func TestBatchScorer_SaveFailure(t *testing.T) {
	repo := &fakeScoreRepo{entries: population("0.5", "1.5"), saveErr: errors.New("deadlock detected")}
	sink := &recordingSink{}

	b := NewBatchScorer(repo, 1, logger.NewNop())
	b.SetEventSink(sink)

	_, err := b.Run(context.Background())
	assert.Error(t, err)
	assert.Empty(t, sink.events)
}
