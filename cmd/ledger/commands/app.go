package commands

import (
	"context"
	"fmt"

	"github.com/wonny/sysmetic/backend/internal/api/handlers"
	"github.com/wonny/sysmetic/backend/internal/calendar"
	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/internal/ledger"
	"github.com/wonny/sysmetic/backend/internal/notify"
	"github.com/wonny/sysmetic/backend/internal/orchestrator"
	"github.com/wonny/sysmetic/backend/internal/realtime"
	"github.com/wonny/sysmetic/backend/internal/scoring"
	"github.com/wonny/sysmetic/backend/pkg/config"
	"github.com/wonny/sysmetic/backend/pkg/database"
	"github.com/wonny/sysmetic/backend/pkg/httputil"
	"github.com/wonny/sysmetic/backend/pkg/logger"
	"github.com/wonny/sysmetic/backend/pkg/redis"
)

// app holds the wired components shared by the commands
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *database.DB
	redis  *redis.Client
	cache  *redis.Cache
	limit  *redis.RateLimiter
	hub    *realtime.Hub
	hook   *notify.Webhook
	cal    *calendar.Calendar
	ledger *ledger.Repository
	scores *scoring.Repository
	orch   *orchestrator.Orchestrator
	scorer *scoring.BatchScorer
}

// newApp loads config and connects every backing service
func newApp(ctx context.Context) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Connect to database
	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// 4. Connect to redis (비활성 시 no-op)
	rc, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	// 5. Ledger engine
	principal, err := ledger.NewPrincipalPolicy(cfg.Ledger.PrincipalPolicy)
	if err != nil {
		db.Close()
		return nil, err
	}
	drawdown, err := ledger.NewDrawdownPolicy(cfg.Ledger.DrawdownPolicy)
	if err != nil {
		db.Close()
		return nil, err
	}
	engine := ledger.NewEngine(principal, drawdown)

	var cal *calendar.Calendar
	if cfg.Calendar.File != "" {
		cal, err = calendar.LoadFile(cfg.Calendar.File, cfg.Calendar.Holidays, cfg.Calendar.Timezone)
	} else {
		cal, err = calendar.New(cfg.Calendar.Holidays, cfg.Calendar.Timezone)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("trading calendar: %w", err)
	}

	// 6. Repositories
	ledgerRepo := ledger.NewRepository(db.Pool)
	scoreRepo := scoring.NewRepository(db.Pool)

	// 7. Event fan-out: websocket + cache invalidation + webhooks
	cache := redis.NewCache(rc, "sysmetic")
	hub := realtime.NewHub(log)
	client := httputil.New(log, cfg.Webhook.Timeout).WithRateLimit(cfg.Webhook.RatePerSecond)
	hook := notify.NewWebhook(client, cfg.Webhook.URLs, cfg.Webhook.Events, log)
	hook.Start(ctx)
	sinks := contracts.EventSinks{hub, handlers.NewCacheInvalidator(cache, log), hook}

	orch := orchestrator.New(ledgerRepo, engine, cal, log)
	orch.SetWorkers(cfg.Ledger.Workers)
	orch.SetEventSink(sinks)

	scorer := scoring.NewBatchScorer(scoreRepo, cfg.Scoring.MinOperationDays, log)
	scorer.SetEventSink(sinks)

	log.WithFields(map[string]interface{}{
		"env":              cfg.Env,
		"principal_policy": principal.Name(),
		"drawdown_policy":  drawdown.Name(),
		"redis":            rc.Status(),
		"webhooks":         len(cfg.Webhook.URLs),
	}).Debug("Application wired")

	return &app{
		cfg:    cfg,
		log:    log,
		db:     db,
		redis:  rc,
		cache:  cache,
		limit:  redis.NewRateLimiter(rc, "sysmetic"),
		hub:    hub,
		hook:   hook,
		cal:    cal,
		ledger: ledgerRepo,
		scores: scoreRepo,
		orch:   orch,
		scorer: scorer,
	}, nil
}

// Close releases every connection
func (a *app) Close() {
	a.hook.Close()
	a.hub.Close()
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close redis")
	}
	a.db.Close()
}
