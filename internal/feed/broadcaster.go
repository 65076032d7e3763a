// ABOUTME: In-memory fan-out of ledger events to live subscribers
// ABOUTME: Subscribers follow one peer or, with an empty peer, every event

package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/botline/internal/store"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// AllPeers subscribes to every event regardless of peer.
const AllPeers = ""

// Broadcaster provides in-memory pub/sub for ledger events. Subscribers
// register for a peer and receive events as the bridge records them.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *store.LedgerEvent // peer -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *store.LedgerEvent),
		logger:      logger.With("component", "feed"),
	}
}

// Subscribe registers a subscriber for events exchanged with peer, or for all
// events when peer is AllPeers. The subscription is removed and its channel
// closed when ctx is cancelled. Subscribing to a closed broadcaster returns
// a closed channel.
func (b *Broadcaster) Subscribe(ctx context.Context, peer string) (<-chan *store.LedgerEvent, string) {
	subID := uuid.New().String()
	ch := make(chan *store.LedgerEvent, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[peer]; !ok {
		b.subscribers[peer] = make(map[string]chan *store.LedgerEvent)
	}
	b.subscribers[peer][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "peer", peer, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(peer, subID)
	}()

	return ch, subID
}

// Publish sends event to the subscribers of its peer and to every AllPeers
// subscriber. Events are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(event *store.LedgerEvent) {
	b.mu.RLock()
	var targets []chan *store.LedgerEvent
	for _, ch := range b.subscribers[AllPeers] {
		targets = append(targets, ch)
	}
	if event.Peer != AllPeers {
		for _, ch := range b.subscribers[event.Peer] {
			targets = append(targets, ch)
		}
	}

	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send; they never block.
	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"peer", event.Peer,
				"event_id", event.ID)
		}
	}
	b.mu.RUnlock()
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(peer, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[peer]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, peer)
	}

	b.logger.Debug("subscriber removed", "peer", peer, "sub_id", subID)
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subscribers {
		n += len(subs)
	}
	return n
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for peer, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, peer)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
