// Package bridge connects a chat frontend to a bot over Direct Line.
//
// # Overview
//
// The Orchestrator receives user messages from a Frontend, forwards them to
// the bot through an Outbound client, and routes the bot's replies back to
// the user who asked. Requests and replies travel on independent channels,
// so a reply may be observed before the send that caused it has returned.
// A correlation.Cache reconciles the two sides by the activity id of the
// forwarded message.
//
// # Message Flow
//
//	Frontend.Run ──InboundMessage──▶ HandleMessage ──Send──▶ Direct Line
//	                                        │
//	                               waiting recipient
//	                                        │
//	Direct Line poll ──[]BotReply──▶ HandleReplies ──Publish──▶ Frontend
//	                                        │
//	                                 pending reply
//
// # Delivery
//
// The match decision (register one side, look for the other, claim the id)
// runs under one mutex. Publishing happens outside the lock; a claimed id
// is marked in flight so no other path can deliver it concurrently. After a
// confirmed publish both sides are removed and the id is remembered as
// completed, so late duplicates are ignored. A failed publish keeps the
// reply pending; Sweep retries it until the cache TTL expires.
//
// # Attach and Detach
//
//	orch := bridge.NewOrchestrator(cache, dl, frontend)
//	if err := orch.Attach(messages, replies); err != nil {
//	    return err
//	}
//	defer orch.Detach()
//
// # Status
//
// NewHTTPHandler exposes status and the recorded traffic:
//
//   - GET /health
//   - GET /health/ready (503 until attached)
//   - GET /api/correlations (with ledger status counts when configured)
//   - GET /api/events?limit=N
//   - GET /api/events/by-id/{eventID}
//   - GET /api/events/{correlationID}
//   - GET /api/events/stream?peer=ID (server-sent events)
package bridge
