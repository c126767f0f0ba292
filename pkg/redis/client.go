package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/sysmetic/backend/pkg/config"
)

const defaultDialTimeout = 5 * time.Second

// Client is the ledger's handle on Redis: the read-side cache and the
// per-strategy write limiter both go through it. A disabled client (REDIS_ENABLED
// false) keeps every call a no-op so the service runs on Postgres alone.
// ⭐ SSOT: Redis 연결은 여기서만 관리
type Client struct {
	rdb  *redis.Client
	addr string
}

// options resolves connection options, REDIS_URL first then host/port
func options(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Host + ":" + cfg.Port,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.DialTimeout = cfg.DialTimeout
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	return opts, nil
}

// New connects and pings once; the ping is bounded by the dial timeout
func New(cfg *config.Config) (*Client, error) {
	if !cfg.Redis.Enabled {
		return &Client{}, nil
	}

	opts, err := options(cfg.Redis)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", opts.Addr, err)
	}

	return &Client{rdb: rdb, addr: opts.Addr}, nil
}

// Status describes the client for startup logs
func (c *Client) Status() string {
	if c.rdb == nil {
		return "disabled"
	}
	return c.addr
}

func (c *Client) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func (c *Client) Enabled() bool { return c.rdb != nil }

// Redis exposes the raw client to the cache and limiter in this package
func (c *Client) Redis() *redis.Client {
	return c.rdb
}
