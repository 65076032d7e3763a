// ABOUTME: Contract tests for the ledger schema to detect breaking changes
// ABOUTME: Validates that expected tables, columns and indexes exist in a fresh database

package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expectedSchema is the column contract for each table. Removing or renaming
// a column breaks existing ledger files.
var expectedSchema = map[string][]string{
	"ledger_events": {
		"event_id", "correlation_id", "direction",
		"frontend", "peer", "author", "text",
		"status", "error", "timestamp",
	},
}

func setupSchemaDB(t *testing.T) *sql.DB {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "contract_test.db"))
	require.NoError(t, err, "failed to create SQLite store")
	t.Cleanup(func() { s.Close() })
	return s.db
}

// getTableColumns queries SQLite for the column names of a table.
func getTableColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, fmt.Errorf("querying table info: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scanning column info: %w", err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns: %w", err)
	}
	return columns, nil
}

func TestSchemaSurface(t *testing.T) {
	db := setupSchemaDB(t)
	ctx := context.Background()

	for table, expectedCols := range expectedSchema {
		t.Run(table, func(t *testing.T) {
			actualCols, err := getTableColumns(ctx, db, table)
			require.NoError(t, err)
			require.NotEmpty(t, actualCols, "table %s should exist", table)

			for _, col := range expectedCols {
				assert.True(t, actualCols[col], "column %s.%s should exist", table, col)
			}
			for col := range actualCols {
				if !slices.Contains(expectedCols, col) {
					t.Logf("INFO: extra column %s.%s not in contract", table, col)
				}
			}
		})
	}
}

func TestSchemaHasIndexes(t *testing.T) {
	db := setupSchemaDB(t)
	ctx := context.Background()

	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='index'")
	require.NoError(t, err)
	defer rows.Close()

	actual := make(map[string]bool)
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		actual[name] = true
	}
	require.NoError(t, rows.Err())

	for _, idx := range []string{"idx_ledger_correlation", "idx_ledger_timestamp", "idx_ledger_status"} {
		assert.True(t, actual[idx], "index %s should exist", idx)
	}
}

