// ABOUTME: Message types and collaborator interfaces for the bridge
// ABOUTME: Defines inbound user messages, bot replies, and the outbound, publisher and frontend contracts

package bridge

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAlreadyAttached is returned by Attach when event sources are already attached.
	ErrAlreadyAttached = errors.New("orchestrator already attached")

	// ErrDeliveryFailed wraps a publisher error. The reply stays pending for retry.
	ErrDeliveryFailed = errors.New("reply delivery failed")

	// ErrInvalidMessage is returned for inbound messages without text or sender.
	ErrInvalidMessage = errors.New("inbound message requires text and sender")
)

// InboundMessage is a user message observed on a chat platform.
type InboundMessage struct {
	// PlatformID is the platform's id for the message (DM event id, Matrix event id)
	PlatformID string

	// SenderID and SenderName identify the user on the platform
	SenderID   string
	SenderName string

	// ChannelID is where replies are published: the DM participant id on
	// Twitter, the room id on Matrix. Empty means SenderID.
	ChannelID string

	Text string
}

// BotReply is a message activity observed on the Direct Line conversation.
type BotReply struct {
	ID         string
	ReplyToID  string // activity id of the forwarded user message
	FromID     string
	Text       string
	TextFormat string
	Timestamp  time.Time
}

// Outbound forwards a user message to the bot and returns the correlation id
// assigned to it.
type Outbound interface {
	Send(ctx context.Context, text, senderID, senderName string) (string, error)
}

// Publisher delivers a reply to a user on the chat platform.
type Publisher interface {
	Publish(ctx context.Context, text, recipientID, recipientName string) error
}

// Frontend is a chat platform adapter. Run emits inbound messages until ctx
// is cancelled.
type Frontend interface {
	Name() string
	Run(ctx context.Context, out chan<- InboundMessage) error
	Publisher
}

// Stats is a snapshot of correlation state.
type Stats struct {
	WaitingRecipients int `json:"waiting_recipients"`
	PendingReplies    int `json:"pending_replies"`
	InFlight          int `json:"in_flight"`
}
