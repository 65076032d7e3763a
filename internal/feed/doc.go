// Package feed fans out ledger events to live subscribers.
//
// The bridge publishes every event it records (forwarded messages,
// deliveries and failed deliveries) to a Broadcaster. The HTTP status
// handler streams them to clients as server-sent events:
//
//	b := feed.NewBroadcaster(logger)
//	orch := bridge.NewOrchestrator(cache, dl, frontend, bridge.WithFeed(b))
//	ch, _ := b.Subscribe(ctx, feed.AllPeers)
//
// Delivery is best effort. A subscriber whose buffer is full misses events
// rather than slowing the bridge down.
package feed
