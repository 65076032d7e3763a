// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu     sync.RWMutex
	events map[string]*LedgerEvent // keyed by event ID
	closed bool

	// SaveErr, when set, is returned by every SaveEvent call.
	SaveErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		events: make(map[string]*LedgerEvent),
	}
}

// SaveEvent stores a copy of the event.
func (m *MockStore) SaveEvent(ctx context.Context, event *LedgerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("store closed")
	}
	if m.SaveErr != nil {
		return m.SaveErr
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Make a copy to avoid external modification
	e := *event
	m.events[e.ID] = &e
	return nil
}

// GetEvent retrieves an event by ID.
func (m *MockStore) GetEvent(ctx context.Context, id string) (*LedgerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

// ListEventsByCorrelation returns events sharing a correlation id, oldest first.
func (m *MockStore) ListEventsByCorrelation(ctx context.Context, correlationID string) ([]*LedgerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*LedgerEvent
	for _, e := range m.events {
		if e.CorrelationID == correlationID {
			cp := *e
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// ListRecentEvents returns the newest events, newest first.
func (m *MockStore) ListRecentEvents(ctx context.Context, limit int) ([]*LedgerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*LedgerEvent, 0, len(m.events))
	for _, e := range m.events {
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	limit = clampLimit(limit)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountEventsByStatus returns the number of events per status.
func (m *MockStore) CountEventsByStatus(ctx context.Context) (map[Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[Status]int)
	for _, e := range m.events {
		counts[e.Status]++
	}
	return counts, nil
}

// Close marks the store closed; later saves fail.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Ensure MockStore implements Store
var _ Store = (*MockStore)(nil)
