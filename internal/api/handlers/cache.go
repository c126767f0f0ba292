package handlers

import (
	"context"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/logger"
	"github.com/wonny/sysmetic/backend/pkg/redis"
)

// CacheInvalidator drops cached read models when a change is committed
type CacheInvalidator struct {
	cache  *redis.Cache
	logger *logger.Logger
}

// NewCacheInvalidator creates an invalidator over cache
func NewCacheInvalidator(cache *redis.Cache, log *logger.Logger) *CacheInvalidator {
	return &CacheInvalidator{cache: cache, logger: log}
}

var _ contracts.EventSink = (*CacheInvalidator)(nil)

// Publish implements contracts.EventSink
func (c *CacheInvalidator) Publish(ctx context.Context, ev contracts.Event) {
	var keys []string
	switch ev.Type {
	case contracts.EventLedgerAppended, contracts.EventLedgerReplaced:
		keys = []string{
			redis.LatestRowKey(ev.StrategyID),
			redis.LedgerKey(ev.StrategyID),
			redis.MonthlyKey(ev.StrategyID),
		}
	case contracts.EventScoresRefreshed:
		// 점수 갱신 시 최신 행의 smScore 도 바뀜
		keys = []string{redis.ScoreBoardKey()}
		if board, ok := ev.Data.(*contracts.ScoreBoard); ok {
			for _, s := range board.Scores {
				keys = append(keys, redis.LatestRowKey(s.StrategyID), redis.LedgerKey(s.StrategyID))
			}
		}
	default:
		return
	}

	if err := c.cache.Delete(ctx, keys...); err != nil {
		c.logger.WithError(err).WithField("event", ev.Type).Warn("Cache invalidation failed")
	}
}
