// Package twitter is the Twitter direct message frontend.
//
// The client polls the v2 dm_events endpoint for MessageCreate events and
// drops events sent by the bot account itself. The listing keeps returning
// recent messages, so the client keeps a watermark: it starts at client
// start and advances to the newest emitted created_at. Older events are
// dropped and events at the watermark instant are dropped by id. The rest
// are handed to the bridge. Replies are published as new direct messages to the
// original sender.
//
// Requests are authenticated with an OAuth 2.0 user access token carrying
// the dm.read and dm.write scopes.
package twitter
