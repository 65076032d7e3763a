// Package correlation matches bot replies to the users waiting for them.
//
// # Overview
//
// A message forwarded to the bot and the bot's answer travel on two
// independent channels. The answer carries the id of the message it replies
// to, but it can arrive before the bridge has recorded who sent that message.
// The Cache holds both halves until they meet:
//
//   - waiting recipients: who to answer, keyed by correlation id
//   - pending replies: answers with no known recipient yet
//
// # Expiry
//
// Entries expire TTL after their Key was created (DefaultTTL is 30s). Expiry
// is lazy: MatchedBundles sweeps expired entries before matching, there is no
// background goroutine. Point lookups (WaitingRecipient, PendingReply) do not
// sweep and may return an entry that is past its TTL but not yet swept.
// LiveRecipient also does not sweep, but treats such an entry as absent.
//
// # Usage
//
//	cache, err := correlation.New(30 * time.Second)
//	key, err := cache.NewKey(activityID)
//	cache.AddWaitingRecipient(key, correlation.Recipient{ExternalUserID: "7", DisplayName: "alice"})
//	cache.AddPendingReply(key, &correlation.Reply{Text: "hello"})
//	for _, b := range cache.MatchedBundles() {
//	    // deliver b.Reply to b.Recipient, then remove both sides
//	}
//
// MatchedBundles never removes matched entries; the caller removes them once
// delivery has succeeded so a failed delivery can be retried.
package correlation
