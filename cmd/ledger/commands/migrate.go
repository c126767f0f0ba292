package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/sysmetic/backend/internal/storage/migrations"
	"github.com/wonny/sysmetic/backend/pkg/config"
	"github.com/wonny/sysmetic/backend/pkg/database"
	"github.com/wonny/sysmetic/backend/pkg/logger"
)

// migrateCmd applies the embedded schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "DB 스키마 적용",
	Long: `내장된 PostgreSQL 마이그레이션을 순서대로 적용합니다.
모든 마이그레이션은 여러 번 실행해도 안전합니다.

Example:
  go run ./cmd/ledger migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	db, err := database.New(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	applied, err := migrations.RunPostgres(cmd.Context(), db.Pool)
	if err != nil {
		return err
	}

	for _, file := range applied {
		log.WithField("file", file).Info("Migration applied")
	}
	PrintSuccess(fmt.Sprintf("%d migrations applied", len(applied)))
	return nil
}
