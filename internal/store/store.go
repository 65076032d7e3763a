// ABOUTME: Store interface and ledger types for botline persistence
// ABOUTME: Defines LedgerEvent, its direction and status enums, and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrEventNotFound is returned when a requested event does not exist
var ErrEventNotFound = errors.New("event not found")

// Direction indicates which way a bridged message travelled
type Direction string

const (
	DirectionToBot  Direction = "to_bot"  // user message forwarded to the bot
	DirectionToUser Direction = "to_user" // bot reply published to the user
)

// Status records the outcome of a bridged message
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// LedgerEvent is one forwarded message or published reply.
type LedgerEvent struct {
	ID            string
	CorrelationID string    // Direct Line activity id; empty if the send failed
	Direction     Direction // to_bot or to_user
	Frontend      string    // "twitter", "matrix"
	Peer          string    // platform user id or room id
	Author        string    // display name of the sender
	Text          *string
	Status        Status
	Error         *string // set when Status is failed
	Timestamp     time.Time
}

// Store defines the ledger persistence operations
type Store interface {
	SaveEvent(ctx context.Context, event *LedgerEvent) error
	GetEvent(ctx context.Context, id string) (*LedgerEvent, error)
	ListEventsByCorrelation(ctx context.Context, correlationID string) ([]*LedgerEvent, error)
	ListRecentEvents(ctx context.Context, limit int) ([]*LedgerEvent, error)
	CountEventsByStatus(ctx context.Context) (map[Status]int, error)
	Close() error
}

// clampLimit applies the default and maximum page size.
func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 500 {
		return 500
	}
	return limit
}
