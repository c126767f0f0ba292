package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/logger"
)

// BatchScorer runs one full read-compute-write scoring pass
type BatchScorer struct {
	repo             contracts.ScoreRepository
	minOperationDays int
	events           contracts.EventSink
	logger           *logger.Logger
	now              func() time.Time
}

// NewBatchScorer creates a batch scorer
func NewBatchScorer(repo contracts.ScoreRepository, minOperationDays int, log *logger.Logger) *BatchScorer {
	return &BatchScorer{
		repo:             repo,
		minOperationDays: minOperationDays,
		events:           contracts.EventSinks{},
		logger:           log,
		now:              time.Now,
	}
}

// SetEventSink sets where scores.refreshed is published after a commit
func (b *BatchScorer) SetEventSink(sink contracts.EventSink) {
	if sink != nil {
		b.events = sink
	}
}

// Run reads the latest KP-Ratio of every eligible strategy, scores the
// population and commits all scores at once. Nothing is written when the
// population read fails or ctx is done before the commit.
func (b *BatchScorer) Run(ctx context.Context) (*contracts.ScoreBoard, error) {
	start := b.now()

	entries, err := b.repo.ListLatestKPRatios(ctx, b.minOperationDays)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contracts.ErrIncompletePopulation, err)
	}

	board := Score(entries, start)

	// 커밋 직전 취소 확인 (부분 반영 금지)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scoring pass cancelled before commit: %w", err)
	}

	if err := b.repo.SaveScores(ctx, board.Scores); err != nil {
		return nil, fmt.Errorf("failed to save scores: %w", err)
	}

	ev := contracts.NewEvent(contracts.EventScoresRefreshed, 0, "", board)
	ev.At = b.now()
	b.events.Publish(ctx, ev)

	b.logger.WithFields(map[string]interface{}{
		"population": len(board.Scores),
		"mean":       board.Mean,
		"stddev":     board.StdDev,
		"duration":   b.now().Sub(start).String(),
	}).Info("SM-Score pass committed")

	return board, nil
}
