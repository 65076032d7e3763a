// ABOUTME: Tests for the SQLite ledger store
// ABOUTME: Covers schema setup, event persistence and ledger queries

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestNewSQLiteStore_CreatesParentDirectories(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "ledger.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	assert.FileExists(t, dbPath)
}

func TestNewSQLiteStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.SaveEvent(ctx, &LedgerEvent{
		ID:            "evt-1",
		CorrelationID: "act-1",
		Direction:     DirectionToBot,
		Frontend:      "twitter",
		Peer:          "42",
		Author:        "alice",
		Status:        StatusSent,
	}))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "act-1", got.CorrelationID)
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveEvent(ctx, &LedgerEvent{
		CorrelationID: "act-1",
		Direction:     DirectionToBot,
		Frontend:      "matrix",
		Peer:          "!room:example.org",
		Author:        "@alice:example.org",
		Status:        StatusSent,
	}))

	events, err := store.ListRecentEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSQLiteStore_RejectsUnknownDirection(t *testing.T) {
	store := setupTestStore(t)

	err := store.SaveEvent(context.Background(), &LedgerEvent{
		CorrelationID: "act-1",
		Direction:     Direction("sideways"),
		Frontend:      "twitter",
		Peer:          "42",
		Author:        "alice",
		Status:        StatusSent,
		Timestamp:     time.Now(),
	})
	assert.Error(t, err)
}
