// Package pgtest provides a migrated PostgreSQL pool for integration tests.
package pgtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wonny/sysmetic/backend/internal/storage/migrations"
)

// Pool connects to TEST_DATABASE_URL, or starts a disposable postgres
// container when it is unset, and applies the embedded migrations.
// The test is skipped in short mode or when docker is unavailable.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = startContainer(t, ctx)
	}

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = migrations.RunPostgres(ctx, pool)
	require.NoError(t, err)
	return pool
}

// StrategyID returns an id unlikely to collide with other test runs sharing
// one database
func StrategyID() int64 {
	return time.Now().UnixNano() % 1_000_000_000
}

// Cleanup deletes every row of the strategy when the test ends
func Cleanup(t *testing.T, pool *pgxpool.Pool, strategyID int64) {
	t.Cleanup(func() {
		ctx := context.Background()
		for _, table := range []string{"sm_scores", "monthly_summaries", "daily_rows", "strategies"} {
			if _, err := pool.Exec(ctx, `DELETE FROM ledger.`+table+` WHERE strategy_id = $1`, strategyID); err != nil {
				t.Logf("cleanup %s: %v", table, err)
			}
		}
	})
}

func startContainer(t *testing.T, ctx context.Context) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("ledger"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}
