// ABOUTME: Thread-safe TTL cache pairing waiting recipients with pending replies.
// ABOUTME: Expired entries are swept lazily on every MatchedBundles call.

package correlation

import (
	"errors"
	"sync"
	"time"
)

// DefaultTTL is the expiry used when no TTL is configured.
const DefaultTTL = 30 * time.Second

// ErrInvalidTTL is returned by New for a non-positive TTL.
var ErrInvalidTTL = errors.New("ttl must be positive")

type recipientEntry struct {
	key       Key
	recipient Recipient
}

type replyEntry struct {
	key   Key
	reply *Reply
}

// Stats is a snapshot of the cache size.
type Stats struct {
	WaitingRecipients int
	PendingReplies    int
}

// Cache holds recipients waiting for a reply and replies waiting for a
// recipient, both keyed by correlation id.
type Cache struct {
	mu         sync.Mutex
	recipients map[string]recipientEntry
	replies    map[string]replyEntry
	ttl        time.Duration
	now        func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now as the cache clock.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache whose entries expire ttl after their key was created.
func New(ttl time.Duration, opts ...Option) (*Cache, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	c := &Cache{
		recipients: make(map[string]recipientEntry),
		replies:    make(map[string]replyEntry),
		ttl:        ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured expiry.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// NewKey builds a key for id stamped with the cache clock.
func (c *Cache) NewKey(id string) (Key, error) {
	return NewKey(id, c.now())
}

// AddWaitingRecipient records who is waiting for the reply to key.
// Returns false for an invalid key or recipient, or if key is already present.
func (c *Cache) AddWaitingRecipient(key Key, recipient Recipient) bool {
	if !key.Valid() || !recipient.Valid() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.recipients[key.ID]; exists {
		return false
	}
	c.recipients[key.ID] = recipientEntry{key: key, recipient: recipient}
	return true
}

// RemoveWaitingRecipient removes the recipient for key.
// Returns false if there was none.
func (c *Cache) RemoveWaitingRecipient(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.recipients[key.ID]; !exists {
		return false
	}
	delete(c.recipients, key.ID)
	return true
}

// WaitingRecipient looks up the recipient for key without sweeping expired entries.
func (c *Cache) WaitingRecipient(key Key) (Recipient, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.recipients[key.ID]
	return entry.recipient, ok
}

// LiveRecipient looks up the recipient for key and reports false if its entry
// has reached the TTL. Expired entries are left for the next sweep.
func (c *Cache) LiveRecipient(key Key) (Recipient, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.recipients[key.ID]
	if !ok || entry.key.expired(c.now(), c.ttl) {
		return Recipient{}, false
	}
	return entry.recipient, true
}

// AddPendingReply stores a reply whose recipient is not known yet.
// Returns false for an empty id, a nil reply, or if key is already present.
func (c *Cache) AddPendingReply(key Key, reply *Reply) bool {
	if !key.Valid() || reply == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.replies[key.ID]; exists {
		return false
	}
	c.replies[key.ID] = replyEntry{key: key, reply: reply}
	return true
}

// RemovePendingReply removes the pending reply for key.
// Returns false if there was none.
func (c *Cache) RemovePendingReply(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.replies[key.ID]; !exists {
		return false
	}
	delete(c.replies, key.ID)
	return true
}

// PendingReply looks up the reply for key without sweeping expired entries.
func (c *Cache) PendingReply(key Key) (*Reply, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.replies[key.ID]
	return entry.reply, ok
}

// MatchedBundles sweeps expired entries and returns one bundle for every id
// present in both maps. The result is never nil. Matched entries stay in the
// cache until the caller removes them.
func (c *Cache) MatchedBundles() []Bundle {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeExpiredLocked()

	bundles := make([]Bundle, 0)
	if len(c.recipients) == 0 {
		return bundles
	}
	for id, pending := range c.replies {
		waiting, ok := c.recipients[id]
		if !ok {
			continue
		}
		bundle, err := NewBundle(pending.key, pending.reply, waiting.recipient)
		if err != nil {
			continue
		}
		bundles = append(bundles, bundle)
	}
	return bundles
}

// Stats returns the current number of entries on each side.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		WaitingRecipients: len(c.recipients),
		PendingReplies:    len(c.replies),
	}
}

// removeExpiredLocked drops every entry whose key is past the TTL.
// Expired ids are collected first so no map is mutated while ranging over it.
// Must be called with mu held.
func (c *Cache) removeExpiredLocked() {
	now := c.now()

	var expiredReplies, expiredRecipients []string
	for id, entry := range c.replies {
		if entry.key.expired(now, c.ttl) {
			expiredReplies = append(expiredReplies, id)
		}
	}
	for id, entry := range c.recipients {
		if entry.key.expired(now, c.ttl) {
			expiredRecipients = append(expiredRecipients, id)
		}
	}

	for _, id := range expiredReplies {
		delete(c.replies, id)
	}
	for _, id := range expiredRecipients {
		delete(c.recipients, id)
	}
}
