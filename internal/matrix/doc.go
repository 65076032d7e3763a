// Package matrix is the Matrix room frontend.
//
// The client syncs with the homeserver and forwards m.room.message text
// events to the bridge. Messages from the bot account, from rooms outside
// the allow list, sent before the client started, or already forwarded are
// skipped. Replies are posted back into the room the message came from.
//
// End-to-end encrypted rooms are not supported.
package matrix
