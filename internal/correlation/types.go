// ABOUTME: Correlation key, recipient, reply and bundle types
// ABOUTME: Keys compare by id only; the creation time drives expiry

package correlation

import (
	"errors"
	"time"
)

// ErrInvalidKey is returned when a key is built from an empty id.
var ErrInvalidKey = errors.New("correlation id is empty")

// ErrInvalidBundle is returned when a bundle lacks a reply or a valid recipient.
var ErrInvalidBundle = errors.New("bundle requires a reply and a valid recipient")

// Key identifies one correlation. Two keys are equal when their IDs are equal;
// CreatedAt is only used to compute expiry.
type Key struct {
	ID        string
	CreatedAt time.Time
}

// NewKey builds a key stamped with createdAt.
func NewKey(id string, createdAt time.Time) (Key, error) {
	if id == "" {
		return Key{}, ErrInvalidKey
	}
	return Key{ID: id, CreatedAt: createdAt}, nil
}

// Equal reports whether k and other name the same correlation.
func (k Key) Equal(other Key) bool {
	return k.ID == other.ID
}

// Valid reports whether the key has a non-empty id.
func (k Key) Valid() bool {
	return k.ID != ""
}

// expired reports whether the key has reached ttl at now.
func (k Key) expired(now time.Time, ttl time.Duration) bool {
	return !now.Before(k.CreatedAt.Add(ttl))
}

// Recipient is the platform user waiting for a reply.
type Recipient struct {
	ExternalUserID string
	DisplayName    string
}

// Valid reports whether both fields are set.
func (r Recipient) Valid() bool {
	return r.ExternalUserID != "" && r.DisplayName != ""
}

// Reply is a bot answer held until its recipient is known.
type Reply struct {
	ActivityID string
	Text       string
	TextFormat string
	ReceivedAt time.Time // informational; expiry uses the Key
}

// Bundle is a reply matched with the recipient it is destined for.
type Bundle struct {
	Key       Key
	Reply     *Reply
	Recipient Recipient
}

// NewBundle pairs a reply with its recipient.
func NewBundle(key Key, reply *Reply, recipient Recipient) (Bundle, error) {
	if reply == nil || !recipient.Valid() {
		return Bundle{}, ErrInvalidBundle
	}
	return Bundle{Key: key, Reply: reply, Recipient: recipient}, nil
}
