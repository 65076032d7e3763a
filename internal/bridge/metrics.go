// ABOUTME: OpenTelemetry metrics for the bridge
// ABOUTME: Counts forwards, reply outcomes and deliveries, and observes correlation gauges

package bridge

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for bridge metrics.
const meterName = "github.com/2389/botline/internal/bridge"

// ReplyOutcome classifies what happened to an observed bot reply.
type ReplyOutcome string

const (
	ReplyMatchedWaiting ReplyOutcome = "matched_waiting" // recipient was already waiting
	ReplyStoredPending  ReplyOutcome = "stored_pending"
	ReplyIgnored        ReplyOutcome = "ignored"
)

// MetricsRecorder records bridge metrics.
// Use NewMetricsRecorder for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordForward records a user message sent to the bot.
	RecordForward(ctx context.Context, frontend string, err error)

	// RecordReply records the outcome of one observed bot reply.
	RecordReply(ctx context.Context, outcome ReplyOutcome)

	// RecordPendingMatch records a stored reply matched by a newly
	// registered recipient. The reply itself was counted when it arrived.
	RecordPendingMatch(ctx context.Context)

	// RecordDelivery records a publish attempt with its latency.
	RecordDelivery(ctx context.Context, frontend string, latency time.Duration, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	forwards         metric.Int64Counter
	forwardErrors    metric.Int64Counter
	replies          metric.Int64Counter
	pendingMatches   metric.Int64Counter
	deliveries       metric.Int64Counter
	deliveryFailures metric.Int64Counter
	deliveryLatency  metric.Float64Histogram
}

// newOtelMetrics creates the bridge instruments on provider.
func newOtelMetrics(provider metric.MeterProvider) (*otelMetrics, error) {
	meter := provider.Meter(meterName)

	forwards, err := meter.Int64Counter("botline.messages.forwarded",
		metric.WithDescription("Number of user messages sent to the bot"),
	)
	if err != nil {
		return nil, err
	}

	forwardErrors, err := meter.Int64Counter("botline.messages.forward_errors",
		metric.WithDescription("Number of user messages the bot channel rejected"),
	)
	if err != nil {
		return nil, err
	}

	replies, err := meter.Int64Counter("botline.replies.observed",
		metric.WithDescription("Number of bot replies observed, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	pendingMatches, err := meter.Int64Counter("botline.replies.pending_matched",
		metric.WithDescription("Number of stored replies matched when their recipient registered"),
	)
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter("botline.replies.delivered",
		metric.WithDescription("Number of replies published to users"),
	)
	if err != nil {
		return nil, err
	}

	deliveryFailures, err := meter.Int64Counter("botline.replies.delivery_failures",
		metric.WithDescription("Number of failed reply publish attempts"),
	)
	if err != nil {
		return nil, err
	}

	deliveryLatency, err := meter.Float64Histogram("botline.replies.delivery_latency_ms",
		metric.WithDescription("Reply publish latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		forwards:         forwards,
		forwardErrors:    forwardErrors,
		replies:          replies,
		pendingMatches:   pendingMatches,
		deliveries:       deliveries,
		deliveryFailures: deliveryFailures,
		deliveryLatency:  deliveryLatency,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by provider, or the
// global provider when provider is nil. If instrument creation fails it
// logs a warning and returns a no-op recorder.
func NewMetricsRecorder(provider metric.MeterProvider) MetricsRecorder {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	m, err := newOtelMetrics(provider)
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordForward records a forwarded message.
func (m *otelMetrics) RecordForward(ctx context.Context, frontend string, err error) {
	attrs := metric.WithAttributes(attribute.String("frontend", frontend))
	m.forwards.Add(ctx, 1, attrs)
	if err != nil {
		m.forwardErrors.Add(ctx, 1, attrs)
	}
}

// RecordReply records a reply outcome.
func (m *otelMetrics) RecordReply(ctx context.Context, outcome ReplyOutcome) {
	m.replies.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

// RecordPendingMatch records a stored reply meeting its recipient.
func (m *otelMetrics) RecordPendingMatch(ctx context.Context) {
	m.pendingMatches.Add(ctx, 1)
}

// RecordDelivery records a publish attempt.
func (m *otelMetrics) RecordDelivery(ctx context.Context, frontend string, latency time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("frontend", frontend),
		attribute.Bool("success", err == nil),
	)
	m.deliveryLatency.Record(ctx, float64(latency.Milliseconds()), attrs)
	if err != nil {
		m.deliveryFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("frontend", frontend)))
		return
	}
	m.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("frontend", frontend)))
}

// ObserveStats registers gauges reporting o's correlation counts on every
// collection. Unregister the returned registration on shutdown.
func ObserveStats(provider metric.MeterProvider, o *Orchestrator) (metric.Registration, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	waiting, err := meter.Int64ObservableGauge("botline.correlations.waiting_recipients",
		metric.WithDescription("Recipients waiting for a bot reply"),
	)
	if err != nil {
		return nil, err
	}
	pending, err := meter.Int64ObservableGauge("botline.correlations.pending_replies",
		metric.WithDescription("Bot replies waiting for their recipient"),
	)
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64ObservableGauge("botline.correlations.in_flight",
		metric.WithDescription("Replies currently being published"),
	)
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		s := o.Stats()
		obs.ObserveInt64(waiting, int64(s.WaitingRecipients))
		obs.ObserveInt64(pending, int64(s.PendingReplies))
		obs.ObserveInt64(inFlight, int64(s.InFlight))
		return nil
	}, waiting, pending, inFlight)
}

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

// Compile-time interface checks.
var (
	_ MetricsRecorder = NoopMetrics{}
	_ MetricsRecorder = (*otelMetrics)(nil)
)

// RecordForward does nothing.
func (NoopMetrics) RecordForward(_ context.Context, _ string, _ error) {}

// RecordReply does nothing.
func (NoopMetrics) RecordReply(_ context.Context, _ ReplyOutcome) {}

// RecordPendingMatch does nothing.
func (NoopMetrics) RecordPendingMatch(_ context.Context) {}

// RecordDelivery does nothing.
func (NoopMetrics) RecordDelivery(_ context.Context, _ string, _ time.Duration, _ error) {}
