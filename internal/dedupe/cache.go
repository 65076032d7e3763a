// ABOUTME: Thread-safe TTL and size bounded set of seen event ids.
// ABOUTME: Frontends use it to drop DM and room events they already forwarded.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type cacheEntry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache tracks event ids seen within the last TTL, keeping at most maxSize
// ids. When full, the oldest id is evicted. Expired ids are pruned from the
// front of the insertion list on every insert, so no background goroutine
// is needed.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // ids in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache remembering ids for ttl, bounded to maxSize entries.
func New(ttl time.Duration, maxSize int, opts ...Option) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Contains reports whether id was seen within the TTL.
func (c *Cache) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[id]
	return ok && c.now().Sub(entry.seenAt) < c.ttl
}

// Add records id and reports whether it was new. A repeated id within the
// TTL returns false and does not refresh its timestamp, so a stream of
// duplicates cannot keep an id alive forever.
func (c *Cache) Add(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.pruneLocked(now)

	if entry, ok := c.seen[id]; ok {
		if now.Sub(entry.seenAt) < c.ttl {
			return false
		}
		c.order.Remove(entry.element)
		delete(c.seen, id)
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.seen[id] = &cacheEntry{
		seenAt:  now,
		element: c.order.PushBack(id),
	}
	return true
}

// Len returns the number of ids currently held, including expired ones not
// yet pruned.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// pruneLocked drops expired ids from the front of the insertion list.
// Insertion order equals timestamp order, so it stops at the first live id.
// Must be called with mu held.
func (c *Cache) pruneLocked(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		id, _ := front.Value.(string)
		entry, ok := c.seen[id]
		if ok && now.Sub(entry.seenAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, id)
	}
}

// evictOldestLocked removes the oldest id. Must be called with mu held.
func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, id)
}
