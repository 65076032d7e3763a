// ABOUTME: HTTP client for the Bot Framework Direct Line v3 API
// ABOUTME: Starts a conversation lazily, posts message activities and polls by watermark

package directline

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
	"strings"
	"sync"
	"time"
)

// DefaultBaseURL is the public Direct Line endpoint.
const DefaultBaseURL = "https://directline.botframework.com"

// DefaultPollInterval is used by Run when no interval is given.
const DefaultPollInterval = 2 * time.Second

// ErrEmptyActivityID is returned when the service accepts an activity but
// does not report its id.
var ErrEmptyActivityID = errors.New("direct line returned an empty activity id")

// Client talks to one Direct Line conversation.
type Client struct {
	baseURL string
	secret  string
	client  *http.Client
	logger  *slog.Logger

	// startMu serializes conversation creation
	startMu sync.Mutex

	mu             sync.Mutex
	conversationID string
	watermark      string
	started        chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithLogger sets the logger used by the polling loop.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Direct Line client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, secret string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  secret,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
		started: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "directline")
	return c
}

// ConversationID returns the active conversation id, or "" before the first Send.
func (c *Client) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// Started is closed once a conversation exists.
func (c *Client) Started() <-chan struct{} {
	return c.started
}

// Send posts text to the bot as a message from the given sender and returns
// the id the service assigned to the activity.
func (c *Client) Send(ctx context.Context, text, senderID, senderName string) (string, error) {
	conversationID, err := c.ensureConversation(ctx)
	if err != nil {
		return "", err
	}

	activity := Activity{
		Type: ActivityTypeMessage,
		From: &ChannelAccount{ID: senderID, Name: senderName},
		Text: text,
	}

	var resp resourceResponse
	path := "/v3/directline/conversations/" + url.PathEscape(conversationID) + "/activities"
	if err := c.do(ctx, http.MethodPost, path, activity, &resp); err != nil {
		return "", fmt.Errorf("posting activity: %w", err)
	}
	if resp.ID == "" {
		return "", ErrEmptyActivityID
	}

	c.logger.Debug("posted activity", "activity_id", resp.ID, "sender_id", senderID)
	return resp.ID, nil
}

// Poll fetches activities newer than the current watermark and advances it.
// Before the first Send there is no conversation and Poll returns nothing.
func (c *Client) Poll(ctx context.Context) ([]Activity, error) {
	c.mu.Lock()
	conversationID, watermark := c.conversationID, c.watermark
	c.mu.Unlock()

	if conversationID == "" {
		return nil, nil
	}

	path := "/v3/directline/conversations/" + url.PathEscape(conversationID) + "/activities"
	if watermark != "" {
		path += "?watermark=" + url.QueryEscape(watermark)
	}

	var set ActivitySet
	if err := c.do(ctx, http.MethodGet, path, nil, &set); err != nil {
		return nil, fmt.Errorf("getting activities: %w", err)
	}

	if set.Watermark != "" {
		c.mu.Lock()
		c.watermark = set.Watermark
		c.mu.Unlock()
	}

	return set.Activities, nil
}

// Run polls every interval until ctx is cancelled, sending each non-empty
// batch to out. Polling starts once the first Send has created the
// conversation. Poll errors are logged and polling continues.
func (c *Client) Run(ctx context.Context, interval time.Duration, out chan<- []Activity) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	select {
	case <-ctx.Done():
		return nil
	case <-c.started:
	}

	c.logger.Info("polling direct line", "conversation_id", c.ConversationID(), "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		activities, err := c.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("polling direct line failed", "error", err)
		} else if len(activities) > 0 {
			c.logger.Debug("received activities", "count", len(activities))
			select {
			case out <- activities:
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

// ensureConversation returns the conversation id, starting one if needed.
func (c *Client) ensureConversation(ctx context.Context) (string, error) {
	if id := c.ConversationID(); id != "" {
		return id, nil
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	// Another sender may have started it while we waited
	if id := c.ConversationID(); id != "" {
		return id, nil
	}

	var conv Conversation
	if err := c.do(ctx, http.MethodPost, "/v3/directline/conversations", nil, &conv); err != nil {
		return "", fmt.Errorf("starting conversation: %w", err)
	}
	if conv.ConversationID == "" {
		return "", errors.New("starting conversation: empty conversation id")
	}

	c.mu.Lock()
	c.conversationID = conv.ConversationID
	c.mu.Unlock()
	close(c.started)

	c.logger.Info("started direct line conversation", "conversation_id", conv.ConversationID)
	return conv.ConversationID, nil
}

// do sends an authenticated JSON request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")
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

	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		return fmt.Errorf("direct line error (%d %s): %s", resp.StatusCode, errResp.Error.Code, errResp.Error.Message)
	}

	return fmt.Errorf("direct line returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
