// ABOUTME: Orchestrator pairing forwarded user messages with bot replies
// ABOUTME: Drives the correlation cache, publishes matches and retries failed deliveries

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/botline/internal/correlation"
	"github.com/2389/botline/internal/dedupe"
	"github.com/2389/botline/internal/feed"
	"github.com/2389/botline/internal/render"
	"github.com/2389/botline/internal/store"
)

// completedSize bounds how many delivered ids and seen messages are remembered.
const completedSize = 10000

// Orchestrator bridges one frontend and one outbound bot channel.
type Orchestrator struct {
	cache     *correlation.Cache
	outbound  Outbound
	publisher Publisher
	frontend  string
	ignoredID string
	renderFn  func(text, format string) string
	ledger    store.Store
	feed      *feed.Broadcaster
	metrics   MetricsRecorder
	logger    *slog.Logger
	now       func() time.Time

	// mu guards the match decision and inFlight
	mu       sync.Mutex
	inFlight map[string]struct{}

	// seen holds delivered correlation ids and forwarded platform message ids
	seen *dedupe.Cache

	attachMu sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	handlers sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithLedger records forwarded messages and deliveries in s.
func WithLedger(s store.Store) Option {
	return func(o *Orchestrator) {
		o.ledger = s
	}
}

// WithFeed publishes every recorded ledger event to b.
func WithFeed(b *feed.Broadcaster) Option {
	return func(o *Orchestrator) {
		o.feed = b
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithIgnoredSender drops replies sent from id, typically the bridge's own account.
func WithIgnoredSender(id string) Option {
	return func(o *Orchestrator) {
		o.ignoredID = id
	}
}

// WithRenderer replaces render.PlainText for converting bot replies to platform text.
func WithRenderer(fn func(text, format string) string) Option {
	return func(o *Orchestrator) {
		o.renderFn = fn
	}
}

// WithFrontendName labels ledger events and metrics when the publisher is not a Frontend.
func WithFrontendName(name string) Option {
	return func(o *Orchestrator) {
		o.frontend = name
	}
}

// WithSeenCache replaces the cache of delivered ids and forwarded messages.
func WithSeenCache(c *dedupe.Cache) Option {
	return func(o *Orchestrator) {
		o.seen = c
	}
}

// NewOrchestrator creates an orchestrator over cache that forwards to outbound
// and delivers through publisher.
func NewOrchestrator(cache *correlation.Cache, outbound Outbound, publisher Publisher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cache:     cache,
		outbound:  outbound,
		publisher: publisher,
		renderFn:  render.PlainText,
		metrics:   NoopMetrics{},
		logger:    slog.Default(),
		now:       time.Now,
		inFlight:  make(map[string]struct{}),
	}
	if f, ok := publisher.(Frontend); ok {
		o.frontend = f.Name()
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.seen == nil {
		o.seen = dedupe.New(cache.TTL(), completedSize)
	}
	o.logger = o.logger.With("component", "bridge")
	return o
}

// HandleMessage forwards a user message to the bot and registers the sender
// as waiting for the reply. If the reply already arrived it is delivered
// before HandleMessage returns.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg InboundMessage) error {
	if msg.Text == "" || msg.SenderID == "" {
		return ErrInvalidMessage
	}

	if msg.PlatformID != "" && !o.seen.Add(o.messageKey(msg.PlatformID)) {
		o.logger.Debug("duplicate inbound message ignored", "platform_id", msg.PlatformID)
		return nil
	}

	recipient := recipientFor(msg)

	id, err := o.outbound.Send(ctx, msg.Text, msg.SenderID, msg.SenderName)
	o.metrics.RecordForward(ctx, o.frontend, err)
	if err != nil {
		o.record(ctx, &store.LedgerEvent{
			Direction: store.DirectionToBot,
			Peer:      recipient.ExternalUserID,
			Author:    recipient.DisplayName,
			Text:      &msg.Text,
			Status:    store.StatusFailed,
			Error:     errString(err),
		})
		return fmt.Errorf("forwarding message: %w", err)
	}

	o.logger.Info("forwarded message to bot",
		"activity_id", id,
		"sender", recipient.DisplayName,
		"content", truncate(msg.Text, 50),
	)
	o.record(ctx, &store.LedgerEvent{
		CorrelationID: id,
		Direction:     store.DirectionToBot,
		Peer:          recipient.ExternalUserID,
		Author:        recipient.DisplayName,
		Text:          &msg.Text,
		Status:        store.StatusSent,
	})

	key, err := o.cache.NewKey(id)
	if err != nil {
		return fmt.Errorf("registering recipient: %w", err)
	}

	o.mu.Lock()
	if o.seen.Contains(o.completedKey(id)) {
		o.mu.Unlock()
		o.logger.Warn("correlation already delivered", "activity_id", id)
		return nil
	}
	if !o.cache.AddWaitingRecipient(key, recipient) {
		o.mu.Unlock()
		o.logger.Warn("recipient already waiting", "activity_id", id)
		return nil
	}
	var claimed []correlation.Bundle
	for _, b := range o.cache.MatchedBundles() {
		if b.Key.ID == id && o.claimLocked(id) {
			claimed = append(claimed, b)
		}
	}
	o.mu.Unlock()

	for _, b := range claimed {
		o.metrics.RecordPendingMatch(ctx)
		o.deliver(ctx, b)
	}
	return nil
}

// HandleReplies processes a batch of bot replies. Replies for waiting
// recipients are delivered immediately; the rest are stored as pending.
// A Sweep runs after the batch so earlier failures are retried.
func (o *Orchestrator) HandleReplies(ctx context.Context, replies []BotReply) {
	for _, r := range replies {
		o.handleReply(ctx, r)
	}
	o.Sweep(ctx)
}

func (o *Orchestrator) handleReply(ctx context.Context, r BotReply) {
	if r.ReplyToID == "" {
		o.metrics.RecordReply(ctx, ReplyIgnored)
		return
	}
	if o.ignoredID != "" && r.FromID == o.ignoredID {
		o.metrics.RecordReply(ctx, ReplyIgnored)
		return
	}

	key, err := o.cache.NewKey(r.ReplyToID)
	if err != nil {
		o.metrics.RecordReply(ctx, ReplyIgnored)
		return
	}
	reply := &correlation.Reply{
		ActivityID: r.ID,
		Text:       r.Text,
		TextFormat: r.TextFormat,
		ReceivedAt: o.now(),
	}

	o.mu.Lock()
	if o.seen.Contains(o.completedKey(key.ID)) {
		o.mu.Unlock()
		o.logger.Debug("reply for delivered correlation ignored", "reply_to_id", key.ID, "activity_id", r.ID)
		o.metrics.RecordReply(ctx, ReplyIgnored)
		return
	}

	recipient, waiting := o.cache.LiveRecipient(key)
	if waiting && o.claimLocked(key.ID) {
		o.mu.Unlock()
		o.metrics.RecordReply(ctx, ReplyMatchedWaiting)
		bundle, err := correlation.NewBundle(key, reply, recipient)
		if err != nil {
			o.release(key.ID)
			return
		}
		o.deliver(ctx, bundle)
		return
	}

	stored := o.cache.AddPendingReply(key, reply)
	o.mu.Unlock()

	if !stored {
		o.logger.Debug("reply already pending", "reply_to_id", key.ID, "activity_id", r.ID)
		o.metrics.RecordReply(ctx, ReplyIgnored)
		return
	}
	o.logger.Debug("stored pending reply", "reply_to_id", key.ID, "activity_id", r.ID)
	o.metrics.RecordReply(ctx, ReplyStoredPending)
}

// Sweep delivers every matched bundle not already in flight and returns the
// number delivered. Expired entries are dropped by the cache as a side effect.
func (o *Orchestrator) Sweep(ctx context.Context) int {
	o.mu.Lock()
	var claimed []correlation.Bundle
	for _, b := range o.cache.MatchedBundles() {
		if o.claimLocked(b.Key.ID) {
			claimed = append(claimed, b)
		}
	}
	o.mu.Unlock()

	delivered := 0
	for _, b := range claimed {
		if o.deliver(ctx, b) {
			delivered++
		}
	}
	return delivered
}

// Stats returns the current correlation counts.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	inFlight := len(o.inFlight)
	o.mu.Unlock()

	cs := o.cache.Stats()
	return Stats{
		WaitingRecipients: cs.WaitingRecipients,
		PendingReplies:    cs.PendingReplies,
		InFlight:          inFlight,
	}
}

// deliver publishes a claimed bundle and reports whether it succeeded. On
// success both sides are removed and the id is marked completed. On failure
// the error is logged and recorded, and the reply is kept pending.
func (o *Orchestrator) deliver(ctx context.Context, b correlation.Bundle) bool {
	id := b.Key.ID
	text := o.renderFn(b.Reply.Text, b.Reply.TextFormat)

	start := o.now()
	err := o.publisher.Publish(ctx, text, b.Recipient.ExternalUserID, b.Recipient.DisplayName)
	o.metrics.RecordDelivery(ctx, o.frontend, o.now().Sub(start), err)

	o.mu.Lock()
	delete(o.inFlight, id)
	if err == nil {
		o.cache.RemoveWaitingRecipient(b.Key)
		o.cache.RemovePendingReply(b.Key)
		o.seen.Add(o.completedKey(id))
	} else {
		// Keep this reply, not a later one for the same id, for the retry
		o.cache.RemovePendingReply(b.Key)
		o.cache.AddPendingReply(b.Key, b.Reply)
	}
	o.mu.Unlock()

	event := &store.LedgerEvent{
		CorrelationID: id,
		Direction:     store.DirectionToUser,
		Peer:          b.Recipient.ExternalUserID,
		Author:        b.Recipient.DisplayName,
		Text:          &text,
		Status:        store.StatusDelivered,
	}

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
		o.logger.Error("delivering reply failed, will retry",
			"activity_id", id,
			"recipient", b.Recipient.DisplayName,
			"error", err,
		)
		event.Status = store.StatusFailed
		event.Error = errString(err)
		o.record(ctx, event)
		return false
	}

	o.logger.Info("delivered reply",
		"activity_id", id,
		"recipient", b.Recipient.DisplayName,
		"length", len(text),
	)
	o.record(ctx, event)
	return true
}

// claimLocked marks id in flight. Returns false if it already was.
// Must be called with mu held.
func (o *Orchestrator) claimLocked(id string) bool {
	if _, busy := o.inFlight[id]; busy {
		return false
	}
	o.inFlight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.inFlight, id)
	o.mu.Unlock()
}

// Attach starts consuming user messages and reply batches, one goroutine
// per source. Each message is handled in its own goroutine so a slow send
// never holds up the next one.
func (o *Orchestrator) Attach(messages <-chan InboundMessage, replies <-chan []BotReply) error {
	o.attachMu.Lock()
	defer o.attachMu.Unlock()

	if o.cancel != nil {
		return ErrAlreadyAttached
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.cancel = cancel
	o.done = done

	var sources sync.WaitGroup
	sources.Add(2)
	go func() {
		defer sources.Done()
		o.consumeMessages(ctx, messages)
	}()
	go func() {
		defer sources.Done()
		o.consumeReplies(ctx, replies)
	}()
	go func() {
		sources.Wait()
		o.handlers.Wait()
		close(done)
	}()

	o.logger.Info("orchestrator attached", "frontend", o.frontend)
	return nil
}

// Detach stops consuming and waits for in-progress handlers. Safe to call
// more than once.
func (o *Orchestrator) Detach() {
	o.attachMu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.attachMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	o.logger.Info("orchestrator detached", "frontend", o.frontend)
}

// Attached reports whether event sources are attached.
func (o *Orchestrator) Attached() bool {
	o.attachMu.Lock()
	defer o.attachMu.Unlock()
	return o.cancel != nil
}

func (o *Orchestrator) consumeMessages(ctx context.Context, messages <-chan InboundMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			o.handlers.Add(1)
			go func() {
				defer o.handlers.Done()
				if err := o.HandleMessage(ctx, msg); err != nil {
					if errors.Is(err, ErrInvalidMessage) {
						o.logger.Debug("inbound message dropped", "platform_id", msg.PlatformID)
						return
					}
					o.logger.Error("handling inbound message failed",
						"platform_id", msg.PlatformID,
						"sender", msg.SenderName,
						"error", err,
					)
				}
			}()
		}
	}
}

func (o *Orchestrator) consumeReplies(ctx context.Context, replies <-chan []BotReply) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-replies:
			if !ok {
				return
			}
			o.HandleReplies(ctx, batch)
		}
	}
}

// record writes a ledger event and publishes it to the feed. Ledger failures
// are logged and never block delivery.
func (o *Orchestrator) record(ctx context.Context, event *store.LedgerEvent) {
	if o.ledger == nil && o.feed == nil {
		return
	}
	event.Frontend = o.frontend
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = o.now()
	}
	if o.ledger != nil {
		if err := o.ledger.SaveEvent(ctx, event); err != nil {
			o.logger.Warn("writing ledger event failed", "correlation_id", event.CorrelationID, "error", err)
		}
	}
	if o.feed != nil {
		o.feed.Publish(event)
	}
}

func (o *Orchestrator) messageKey(platformID string) string {
	return "message:" + o.frontend + ":" + platformID
}

func (o *Orchestrator) completedKey(id string) string {
	return "delivered:" + id
}

// recipientFor builds the reply address for msg.
func recipientFor(msg InboundMessage) correlation.Recipient {
	r := correlation.Recipient{
		ExternalUserID: msg.ChannelID,
		DisplayName:    msg.SenderName,
	}
	if r.ExternalUserID == "" {
		r.ExternalUserID = msg.SenderID
	}
	if r.DisplayName == "" {
		r.DisplayName = msg.SenderID
	}
	return r
}

func errString(err error) *string {
	s := err.Error()
	return &s
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
