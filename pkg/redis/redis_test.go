package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/sysmetic/backend/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return client
}

func TestNewClient_Disabled(t *testing.T) {
	client := disabledClient(t)
	assert.False(t, client.Enabled())
	assert.Equal(t, "disabled", client.Status())
	assert.NoError(t, client.Close())
}

func TestOptions(t *testing.T) {
	t.Run("host and port", func(t *testing.T) {
		opts, err := options(config.RedisConfig{Host: "cache", Port: "6380", DB: 2, PoolSize: 4})
		require.NoError(t, err)
		assert.Equal(t, "cache:6380", opts.Addr)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, 4, opts.PoolSize)
		assert.Equal(t, defaultDialTimeout, opts.DialTimeout)
	})

	t.Run("url wins over host", func(t *testing.T) {
		opts, err := options(config.RedisConfig{
			URL:         "redis://:secret@ledger-cache:6379/3",
			Host:        "ignored",
			Port:        "1",
			DialTimeout: time.Second,
		})
		require.NoError(t, err)
		assert.Equal(t, "ledger-cache:6379", opts.Addr)
		assert.Equal(t, "secret", opts.Password)
		assert.Equal(t, 3, opts.DB)
		assert.Equal(t, time.Second, opts.DialTimeout)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := options(config.RedisConfig{URL: "http://nope"})
		assert.Error(t, err)
	})
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(disabledClient(t), "test")

	// When Redis is disabled, all requests should be allowed
	allowed, remaining, err := limiter.Allow(context.Background(), ScoreRunRateLimit)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, ScoreRunRateLimit.Limit, remaining)
}

func TestRateLimitConfig_ForKey(t *testing.T) {
	scoped := LedgerWriteRateLimit.ForKey("42")
	assert.Equal(t, "ledger-write:42", scoped.Key)
	assert.Equal(t, "ledger-write", LedgerWriteRateLimit.Key, "original untouched")
	assert.Equal(t, time.Minute, scoped.Window)
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")
	ctx := context.Background()

	// When Redis is disabled, cache operations should be no-ops
	var result string
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cache.Set(ctx, "key", "value", TTLShort))
	assert.NoError(t, cache.Delete(ctx, "key"))

	calls := 0
	err = cache.GetOrSet(ctx, "key", &result, TTLShort, func() (interface{}, error) {
		calls++
		return "computed", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "computed", result)
	assert.Equal(t, 1, calls)
}

func TestCacheKeys(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"LatestRowKey", LatestRowKey(42), "ledger:42:latest"},
		{"LedgerKey", LedgerKey(42), "ledger:42:rows"},
		{"MonthlyKey", MonthlyKey(7), "ledger:7:monthly"},
		{"ScoreBoardKey", ScoreBoardKey(), "scores:board"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.got)
		})
	}
}
