// ABOUTME: Ledger event operations for the SQLite store
// ABOUTME: Saves and queries bridged messages by id, correlation and status

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timestampFormat is fixed-width so text ordering matches time ordering
const timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

const eventColumns = `event_id, correlation_id, direction, frontend, peer, author, text, status, error, timestamp`

// SaveEvent persists a ledger event. A missing ID or Timestamp is filled in.
func (s *SQLiteStore) SaveEvent(ctx context.Context, event *LedgerEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	query := `INSERT INTO ledger_events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.CorrelationID,
		string(event.Direction),
		event.Frontend,
		event.Peer,
		event.Author,
		event.Text,
		string(event.Status),
		event.Error,
		event.Timestamp.UTC().Format(timestampFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	s.logger.Debug("saved ledger event",
		"event_id", event.ID,
		"correlation_id", event.CorrelationID,
		"direction", event.Direction,
		"status", event.Status,
	)
	return nil
}

// GetEvent retrieves a single event by ID
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*LedgerEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM ledger_events WHERE event_id = ?`

	event, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return event, nil
}

// ListEventsByCorrelation retrieves every event of one exchange, oldest first
func (s *SQLiteStore) ListEventsByCorrelation(ctx context.Context, correlationID string) ([]*LedgerEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM ledger_events
		WHERE correlation_id = ?
		ORDER BY timestamp ASC
	`
	return s.queryEvents(ctx, query, correlationID)
}

// ListRecentEvents retrieves the newest events, newest first
func (s *SQLiteStore) ListRecentEvents(ctx context.Context, limit int) ([]*LedgerEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM ledger_events
		ORDER BY timestamp DESC
		LIMIT ?
	`
	return s.queryEvents(ctx, query, clampLimit(limit))
}

// CountEventsByStatus returns the number of events per status
func (s *SQLiteStore) CountEventsByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM ledger_events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating count rows: %w", err)
	}
	return counts, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*LedgerEvent, error) {
	event := &LedgerEvent{}
	var direction, status, timestampStr string

	if err := row.Scan(
		&event.ID,
		&event.CorrelationID,
		&direction,
		&event.Frontend,
		&event.Peer,
		&event.Author,
		&event.Text,
		&status,
		&event.Error,
		&timestampStr,
	); err != nil {
		return nil, err
	}

	event.Direction = Direction(direction)
	event.Status = Status(status)

	ts, err := time.Parse(time.RFC3339Nano, timestampStr)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	event.Timestamp = ts
	return event, nil
}

// queryEvents is a helper that executes a query and returns events
func (s *SQLiteStore) queryEvents(ctx context.Context, query string, args ...any) ([]*LedgerEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*LedgerEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}

	return events, nil
}
