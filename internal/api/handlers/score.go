package handlers

import (
	"context"
	"net/http"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/logger"
	"github.com/wonny/sysmetic/backend/pkg/redis"
)

// ScoreRunner runs one full scoring pass
type ScoreRunner interface {
	Run(ctx context.Context) (*contracts.ScoreBoard, error)
}

// ScoreHandler handles SM-Score API endpoints
type ScoreHandler struct {
	repo    contracts.ScoreRepository
	runner  ScoreRunner
	cache   *redis.Cache
	limiter *redis.RateLimiter
	logger  *logger.Logger
}

// NewScoreHandler creates a new score handler
func NewScoreHandler(repo contracts.ScoreRepository, runner ScoreRunner, cache *redis.Cache, limiter *redis.RateLimiter, log *logger.Logger) *ScoreHandler {
	return &ScoreHandler{
		repo:    repo,
		runner:  runner,
		cache:   cache,
		limiter: limiter,
		logger:  log,
	}
}

// GetScores returns the last committed score board
// GET /api/scores
func (h *ScoreHandler) GetScores(w http.ResponseWriter, r *http.Request) {
	var scores []contracts.SMScore
	err := h.cache.GetOrSet(r.Context(), redis.ScoreBoardKey(), &scores, redis.TTLDaily, func() (interface{}, error) {
		return h.repo.ListScores(r.Context())
	})
	if err != nil {
		respondDomainError(w, h.logger, err, "Failed to retrieve scores")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(scores),
		"scores": scores,
	})
}

// RunScores triggers a scoring pass outside the nightly schedule
// POST /api/scores/run
func (h *ScoreHandler) RunScores(w http.ResponseWriter, r *http.Request) {
	allowed, _, err := h.limiter.Allow(r.Context(), redis.ScoreRunRateLimit)
	if err != nil {
		h.logger.WithError(err).Warn("Rate limiter unavailable")
	} else if !allowed {
		respondError(w, http.StatusTooManyRequests, "Scoring pass already requested recently")
		return
	}

	board, err := h.runner.Run(r.Context())
	if err != nil {
		respondDomainError(w, h.logger, err, "Scoring pass failed")
		return
	}

	respondJSON(w, http.StatusOK, board)
}
