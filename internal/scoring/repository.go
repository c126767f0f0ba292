package scoring

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/database"
)

// Repository handles SM-Score persistence in PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new score repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ contracts.ScoreRepository = (*Repository)(nil)

// ListLatestKPRatios returns the latest row's kp_ratio of every strategy
// that has operated at least minOperationDays
func (r *Repository) ListLatestKPRatios(ctx context.Context, minOperationDays int) ([]contracts.KPRatioEntry, error) {
	query := `
		SELECT strategy_id, trade_date, kp_ratio
		FROM (
			SELECT DISTINCT ON (strategy_id)
				strategy_id, trade_date, kp_ratio, strategy_operation_days
			FROM ledger.daily_rows
			ORDER BY strategy_id, trade_date DESC
		) latest
		WHERE strategy_operation_days >= $1
		ORDER BY strategy_id
	`

	rows, err := r.pool.Query(ctx, query, minOperationDays)
	if err != nil {
		return nil, fmt.Errorf("failed to query KP-Ratios: %w", err)
	}
	defer rows.Close()

	entries := make([]contracts.KPRatioEntry, 0)
	for rows.Next() {
		var e contracts.KPRatioEntry
		if err := rows.Scan(&e.StrategyID, &e.Date, &e.KPRatio); err != nil {
			return nil, fmt.Errorf("failed to scan KP-Ratio: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating KP-Ratios: %w", err)
	}
	return entries, nil
}

// SaveScores replaces the score board and stamps sm_score on each scored row
func (r *Repository) SaveScores(ctx context.Context, scores []contracts.SMScore) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM ledger.sm_scores`)
		for _, s := range scores {
			batch.Queue(`
				UPDATE ledger.daily_rows SET sm_score = $3
				WHERE strategy_id = $1 AND trade_date = $2
			`, s.StrategyID, s.Date, s.Score)
			batch.Queue(`
				INSERT INTO ledger.sm_scores (strategy_id, trade_date, kp_ratio, z_score, sm_score, computed_at)
				VALUES ($1, $2, $3, $4, $5, now())
			`, s.StrategyID, s.Date, s.KPRatio, s.ZScore, s.Score)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to write scores: %w", err)
		}
		return nil
	})
}

// ListScores returns the last committed board
func (r *Repository) ListScores(ctx context.Context) ([]contracts.SMScore, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT strategy_id, trade_date, kp_ratio, z_score, sm_score
		FROM ledger.sm_scores
		ORDER BY strategy_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	scores := make([]contracts.SMScore, 0)
	for rows.Next() {
		var s contracts.SMScore
		if err := rows.Scan(&s.StrategyID, &s.Date, &s.KPRatio, &s.ZScore, &s.Score); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scores: %w", err)
	}
	return scores, nil
}
