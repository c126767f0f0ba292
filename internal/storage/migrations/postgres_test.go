package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiles(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_ledger.sql", files[0])
}

func TestLedgerSchema(t *testing.T) {
	data, err := fs.ReadFile(PostgresFS, "postgres/001_ledger.sql")
	require.NoError(t, err)

	sql := string(data)
	for _, table := range []string{"ledger.strategies", "ledger.daily_rows", "ledger.monthly_summaries", "ledger.sm_scores"} {
		assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.True(t, strings.Contains(sql, "PRIMARY KEY (strategy_id, trade_date)"))
}
