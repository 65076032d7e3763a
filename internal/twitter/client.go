// ABOUTME: Twitter v2 direct message client implementing bridge.Frontend
// ABOUTME: Polls dm_events for new messages and publishes replies via dm_conversations

package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/2389/botline/internal/bridge"
	"github.com/2389/botline/internal/dedupe"
)

// Name is the frontend name used in logs, metrics and the ledger.
const Name = "twitter"

const (
	defaultAPIBase      = "https://api.twitter.com"
	defaultPollInterval = 30 * time.Second
	defaultDedupeTTL    = 10 * time.Minute
	defaultDedupeSize   = 10000
)

// Config holds the client settings.
type Config struct {
	APIBase      string
	BearerToken  string
	UserID       string // the bot account; its own messages are skipped
	PollInterval time.Duration
	DedupeTTL    time.Duration
	DedupeSize   int
}

// Client polls and sends Twitter direct messages.
type Client struct {
	apiBase      string
	userID       string
	pollInterval time.Duration
	client       *http.Client
	seen         *dedupe.Cache
	logger       *slog.Logger

	// Events older than watermark are never forwarded. The listing keeps
	// returning recent messages after seen forgets them, so the watermark
	// advances to the newest accepted CreatedAt. atWatermark holds the ids
	// accepted at exactly that instant.
	mu          sync.Mutex
	watermark   time.Time
	atWatermark map[string]struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses hc's transport underneath the OAuth2 transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithStartTime overrides the time before which events are ignored.
func WithStartTime(t time.Time) Option {
	return func(c *Client) {
		c.watermark = t
	}
}

// New creates a Twitter client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BearerToken == "" {
		return nil, errors.New("twitter bearer token is required")
	}
	if cfg.UserID == "" {
		return nil, errors.New("twitter user id is required")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = defaultDedupeTTL
	}
	if cfg.DedupeSize <= 0 {
		cfg.DedupeSize = defaultDedupeSize
	}

	c := &Client{
		apiBase:      strings.TrimSuffix(cfg.APIBase, "/"),
		userID:       cfg.UserID,
		pollInterval: cfg.PollInterval,
		client:       &http.Client{Timeout: 30 * time.Second},
		seen:         dedupe.New(cfg.DedupeTTL, cfg.DedupeSize),
		logger:       slog.Default(),
		watermark:    time.Now(),
		atWatermark:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.client.Transport
	c.client = &http.Client{
		Timeout: c.client.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.BearerToken, TokenType: "Bearer"}),
			Base:   base,
		},
	}
	c.logger = c.logger.With("component", "twitter")
	return c, nil
}

// Name returns the frontend name.
func (c *Client) Name() string {
	return Name
}

// Run polls for direct messages until ctx is cancelled. Poll errors are
// logged and polling continues.
func (c *Client) Run(ctx context.Context, out chan<- bridge.InboundMessage) error {
	c.logger.Info("polling twitter direct messages", "user_id", c.userID, "interval", c.pollInterval)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		messages, err := c.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("polling direct messages failed", "error", err)
		}
		for _, msg := range messages {
			select {
			case out <- msg:
			case <-ctx.Done():
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll fetches recent direct message events and returns the new ones from
// other users, oldest first.
func (c *Client) Poll(ctx context.Context) ([]bridge.InboundMessage, error) {
	q := url.Values{}
	q.Set("event_types", "MessageCreate")
	q.Set("dm_event.fields", "id,text,sender_id,created_at,dm_conversation_id")
	q.Set("expansions", "sender_id")
	q.Set("user.fields", "username")

	var resp dmEventsResponse
	if err := c.do(ctx, http.MethodGet, "/2/dm_events?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("listing dm events: %w", err)
	}

	usernames := make(map[string]string, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		usernames[u.ID] = u.Username
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var messages []bridge.InboundMessage
	// The API returns newest first
	for _, evt := range slices.Backward(resp.Data) {
		if evt.EventType != "" && evt.EventType != "MessageCreate" {
			continue
		}
		if evt.SenderID == c.userID || evt.Text == "" {
			continue
		}
		if c.behindWatermark(evt) {
			continue
		}
		if !c.seen.Add(evt.ID) {
			continue
		}
		c.advanceWatermark(evt)

		c.logger.Debug("received direct message", "event_id", evt.ID, "sender_id", evt.SenderID)
		messages = append(messages, bridge.InboundMessage{
			PlatformID: evt.ID,
			SenderID:   evt.SenderID,
			SenderName: usernames[evt.SenderID],
			ChannelID:  evt.SenderID,
			Text:       evt.Text,
		})
	}
	return messages, nil
}

// behindWatermark reports whether evt was already forwarded or predates the
// watermark. Events without a timestamp rely on the dedupe cache alone.
// Caller must hold c.mu.
func (c *Client) behindWatermark(evt dmEvent) bool {
	if evt.CreatedAt.IsZero() {
		return false
	}
	if evt.CreatedAt.Before(c.watermark) {
		return true
	}
	if evt.CreatedAt.Equal(c.watermark) {
		_, ok := c.atWatermark[evt.ID]
		return ok
	}
	return false
}

// advanceWatermark records evt as forwarded. Caller must hold c.mu.
func (c *Client) advanceWatermark(evt dmEvent) {
	switch {
	case evt.CreatedAt.IsZero():
	case evt.CreatedAt.After(c.watermark):
		c.watermark = evt.CreatedAt
		c.atWatermark = map[string]struct{}{evt.ID: {}}
	case evt.CreatedAt.Equal(c.watermark):
		c.atWatermark[evt.ID] = struct{}{}
	}
}

// Publish sends text as a direct message to recipientID.
func (c *Client) Publish(ctx context.Context, text, recipientID, recipientName string) error {
	path := "/2/dm_conversations/with/" + url.PathEscape(recipientID) + "/messages"

	var resp sendMessageResponse
	if err := c.do(ctx, http.MethodPost, path, sendMessageRequest{Text: text}, &resp); err != nil {
		return fmt.Errorf("sending direct message to %s: %w", recipientName, err)
	}

	c.logger.Debug("sent direct message",
		"recipient_id", recipientID,
		"dm_event_id", resp.Data.DMEventID,
	)
	return nil
}

// do sends a JSON request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// handleErrorResponse extracts the error message from a non-2xx response.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp apiError
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail != "" {
		return fmt.Errorf("twitter error (%d): %s", resp.StatusCode, errResp.Detail)
	}

	return fmt.Errorf("twitter returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// Compile-time interface check.
var _ bridge.Frontend = (*Client)(nil)
