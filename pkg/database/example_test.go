package database_test

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/sysmetic/backend/pkg/config"
	"github.com/wonny/sysmetic/backend/pkg/database"
)

// Example shows connecting and writing inside one transaction
func Example() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	err = database.WithTx(ctx, db.Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO ledger.strategies (strategy_id, name) VALUES ($1, $2)
			ON CONFLICT (strategy_id) DO NOTHING`, 1, "example")
		return err
	})
	if err != nil {
		log.Fatalf("Insert failed: %v", err)
	}

	status, err := db.HealthCheck(ctx)
	if err != nil {
		log.Fatalf("Health check failed: %v", err)
	}
	fmt.Printf("Database is healthy: %v (max conns %d)\n", status.Healthy, status.Stats.MaxConns)
}
