// ABOUTME: Conversion from Direct Line activities to bot replies
// ABOUTME: Keeps only message activities so typing and event activities never reach the cache

package bridge

import "github.com/2389/botline/internal/directline"

// RepliesFromActivities converts a polled activity batch into bot replies.
// Non-message activities are dropped.
func RepliesFromActivities(activities []directline.Activity) []BotReply {
	replies := make([]BotReply, 0, len(activities))
	for _, a := range activities {
		if a.Type != directline.ActivityTypeMessage {
			continue
		}
		replies = append(replies, BotReply{
			ID:         a.ID,
			ReplyToID:  a.ReplyToID,
			FromID:     a.FromID(),
			Text:       a.Text,
			TextFormat: a.TextFormat,
			Timestamp:  a.Timestamp,
		})
	}
	return replies
}
