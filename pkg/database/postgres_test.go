package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/sysmetic/backend/pkg/config"
)

func TestPoolConfig(t *testing.T) {
	pc, err := PoolConfig(config.DatabaseConfig{
		URL:             "postgres://user:pw@localhost:5432/sysmetic?sslmode=disable",
		MaxConns:        12,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 10 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(12), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
	assert.Equal(t, 10*time.Minute, pc.MaxConnIdleTime)
	assert.Equal(t, "sysmetic", pc.ConnConfig.Database)
}

func TestPoolConfig_InvalidURL(t *testing.T) {
	_, err := PoolConfig(config.DatabaseConfig{URL: "postgres://%zz"})
	assert.Error(t, err)
}

func connect(t *testing.T) *DB {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestHealthCheck(t *testing.T) {
	db := connect(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := db.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Positive(t, status.Stats.MaxConns)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := connect(t)
	ctx := context.Background()

	err := WithTx(ctx, db.Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS public.tx_probe_rollback (v int)`)
		require.NoError(t, err)
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	var exists bool
	require.NoError(t, db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = 'public' AND tablename = 'tx_probe_rollback')`).Scan(&exists))
	assert.False(t, exists)
}
