// ABOUTME: Matrix client implementing bridge.Frontend using mautrix
// ABOUTME: Syncs room messages into the bridge and publishes replies into the originating room

package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/botline/internal/bridge"
	"github.com/2389/botline/internal/dedupe"
)

// Name is the frontend name used in logs, metrics and the ledger.
const Name = "matrix"

const (
	defaultDedupeTTL  = 10 * time.Minute
	defaultDedupeSize = 10000
)

// Config holds the client settings.
type Config struct {
	Homeserver   string
	UserID       string
	AccessToken  string
	AllowedRooms []string // empty allows every joined room
	DedupeTTL    time.Duration
	DedupeSize   int
}

// Client bridges Matrix rooms.
type Client struct {
	userID       id.UserID
	allowedRooms []string
	matrix       *mautrix.Client
	seen         *dedupe.Cache
	startedAt    time.Time
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithStartTime overrides the time before which events are ignored.
func WithStartTime(t time.Time) Option {
	return func(c *Client) {
		c.startedAt = t
	}
}

// New creates a Matrix client. It does not contact the homeserver until Run or Publish.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Homeserver == "" || cfg.UserID == "" || cfg.AccessToken == "" {
		return nil, errors.New("matrix homeserver, user id and access token are required")
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = defaultDedupeTTL
	}
	if cfg.DedupeSize <= 0 {
		cfg.DedupeSize = defaultDedupeSize
	}

	mx, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	c := &Client{
		userID:       id.UserID(cfg.UserID),
		allowedRooms: cfg.AllowedRooms,
		matrix:       mx,
		seen:         dedupe.New(cfg.DedupeTTL, cfg.DedupeSize),
		startedAt:    time.Now(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "matrix")
	return c, nil
}

// Name returns the frontend name.
func (c *Client) Name() string {
	return Name
}

// Run syncs with the homeserver until ctx is cancelled, emitting text
// messages on out.
func (c *Client) Run(ctx context.Context, out chan<- bridge.InboundMessage) error {
	syncer, ok := c.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", c.matrix.Syncer)
	}
	syncer.OnEventType(event.EventMessage, func(_ context.Context, evt *event.Event) {
		msg, ok := c.inboundFromEvent(evt)
		if !ok {
			return
		}
		select {
		case out <- msg:
		case <-ctx.Done():
		}
	})

	c.logger.Info("connecting to matrix homeserver", "user_id", c.userID.String())

	syncCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- c.matrix.SyncWithContext(syncCtx)
	}()

	select {
	case <-ctx.Done():
		c.logger.Info("stopping matrix sync")
		cancel()
		<-syncErr
		return nil
	case err := <-syncErr:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// Publish posts text into the room recipientID.
func (c *Client) Publish(ctx context.Context, text, recipientID, recipientName string) error {
	resp, err := c.matrix.SendText(ctx, id.RoomID(recipientID), text)
	if err != nil {
		return fmt.Errorf("sending message to room %s: %w", recipientID, err)
	}
	c.logger.Debug("sent message", "room", recipientID, "event_id", resp.EventID.String(), "to", recipientName)
	return nil
}

// inboundFromEvent converts a room message into an inbound message,
// reporting false for events the bridge must skip.
func (c *Client) inboundFromEvent(evt *event.Event) (bridge.InboundMessage, bool) {
	// Ignore our own messages
	if evt.Sender == c.userID {
		return bridge.InboundMessage{}, false
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText || content.Body == "" {
		return bridge.InboundMessage{}, false
	}

	roomID := evt.RoomID.String()
	if !c.isRoomAllowed(roomID) {
		c.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return bridge.InboundMessage{}, false
	}

	if time.UnixMilli(evt.Timestamp).Before(c.startedAt) {
		return bridge.InboundMessage{}, false
	}

	if !c.seen.Add(evt.ID.String()) {
		return bridge.InboundMessage{}, false
	}

	c.logger.Debug("received message", "room", roomID, "sender", evt.Sender.String())
	return bridge.InboundMessage{
		PlatformID: evt.ID.String(),
		SenderID:   evt.Sender.String(),
		SenderName: evt.Sender.String(),
		ChannelID:  roomID,
		Text:       content.Body,
	}, true
}

// isRoomAllowed checks if the room is in the allowed list.
func (c *Client) isRoomAllowed(roomID string) bool {
	if len(c.allowedRooms) == 0 {
		return true // Allow all if no filter
	}
	return slices.Contains(c.allowedRooms, roomID)
}

// Compile-time interface check.
var _ bridge.Frontend = (*Client)(nil)
