// ABOUTME: Twitter v2 API wire types for direct messages
// ABOUTME: Covers dm_events listings, user expansions, send requests and problem responses

package twitter

import "time"

type dmEvent struct {
	ID               string    `json:"id"`
	EventType        string    `json:"event_type"`
	Text             string    `json:"text"`
	SenderID         string    `json:"sender_id"`
	DMConversationID string    `json:"dm_conversation_id"`
	CreatedAt        time.Time `json:"created_at"`
}

type user struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type dmEventsResponse struct {
	Data     []dmEvent `json:"data"`
	Includes struct {
		Users []user `json:"users"`
	} `json:"includes"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	Data struct {
		DMConversationID string `json:"dm_conversation_id"`
		DMEventID        string `json:"dm_event_id"`
	} `json:"data"`
}

// apiError is the problem body returned on failed requests.
type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}
