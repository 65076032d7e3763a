// ABOUTME: Direct Line v3 wire types
// ABOUTME: Activities, channel accounts and the responses of the conversation endpoints

package directline

import "time"

// ActivityTypeMessage is the only activity type the bridge forwards.
const ActivityTypeMessage = "message"

// ChannelAccount identifies the sender or recipient of an activity.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Activity is a Bot Framework activity as sent and received over Direct Line.
type Activity struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	From       *ChannelAccount `json:"from,omitempty"`
	Text       string          `json:"text,omitempty"`
	TextFormat string          `json:"textFormat,omitempty"`
	ReplyToID  string          `json:"replyToId,omitempty"`
	Timestamp  time.Time       `json:"timestamp,omitzero"`
}

// FromID returns the sender id, or "" when the activity has no sender.
func (a Activity) FromID() string {
	if a.From == nil {
		return ""
	}
	return a.From.ID
}

// ActivitySet is the response of GET .../activities.
type ActivitySet struct {
	Activities []Activity `json:"activities"`
	Watermark  string     `json:"watermark"`
}

// Conversation is the response of POST /v3/directline/conversations.
type Conversation struct {
	ConversationID string `json:"conversationId"`
	Token          string `json:"token,omitempty"`
	ExpiresIn      int    `json:"expires_in,omitempty"`
	StreamURL      string `json:"streamUrl,omitempty"`
}

// resourceResponse is the response of POST .../activities.
type resourceResponse struct {
	ID string `json:"id"`
}

// errorResponse is the error body returned by the Direct Line service.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
