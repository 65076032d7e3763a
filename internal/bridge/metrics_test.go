// ABOUTME: Tests for bridge OpenTelemetry metrics
// ABOUTME: Uses a manual reader to verify counters, histograms and correlation gauges

package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest creates a meter provider backed by a manual reader.
func setupMetricsTest(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	})
	return provider, reader
}

// collectMetrics collects all metrics from the reader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

// findMetric finds a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumValue totals all data points of an int64 sum.
func sumValue(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	require.NotNil(t, m, "metric %s not found", name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "Expected Sum type for %s", name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

// gaugeValue returns the single data point of an int64 gauge.
func gaugeValue(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	require.NotNil(t, m, "metric %s not found", name)
	gauge, ok := m.Data.(metricdata.Gauge[int64])
	require.True(t, ok, "Expected Gauge type for %s", name)
	require.Len(t, gauge.DataPoints, 1)
	return gauge.DataPoints[0].Value
}

func TestNewMetricsRecorder(t *testing.T) {
	provider, _ := setupMetricsTest(t)

	recorder := NewMetricsRecorder(provider)
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestMetrics_RecordCounters(t *testing.T) {
	provider, reader := setupMetricsTest(t)
	m, err := newOtelMetrics(provider)
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordForward(ctx, "twitter", nil)
	m.RecordForward(ctx, "twitter", errors.New("rejected"))
	m.RecordReply(ctx, ReplyStoredPending)
	m.RecordReply(ctx, ReplyIgnored)
	m.RecordDelivery(ctx, "twitter", 20*time.Millisecond, nil)
	m.RecordDelivery(ctx, "twitter", 5*time.Millisecond, errors.New("503"))

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumValue(t, rm, "botline.messages.forwarded"))
	assert.Equal(t, int64(1), sumValue(t, rm, "botline.messages.forward_errors"))
	assert.Equal(t, int64(2), sumValue(t, rm, "botline.replies.observed"))
	assert.Equal(t, int64(1), sumValue(t, rm, "botline.replies.delivered"))
	assert.Equal(t, int64(1), sumValue(t, rm, "botline.replies.delivery_failures"))

	latency := findMetric(rm, "botline.replies.delivery_latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "Expected Histogram type")
	assert.NotEmpty(t, hist.DataPoints)
}

func TestMetrics_OrchestratorIntegration(t *testing.T) {
	provider, reader := setupMetricsTest(t)
	h := newHarness(t, 30*time.Second, WithMetrics(NewMetricsRecorder(provider)))
	ctx := context.Background()

	reg, err := ObserveStats(provider, h.orch)
	require.NoError(t, err)
	defer reg.Unregister()

	require.NoError(t, h.orch.HandleMessage(ctx, userMessage("dm-1", "hi")))
	h.orch.HandleReplies(ctx, []BotReply{{ReplyToID: "conv|unmatched", Text: "orphan"}})

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumValue(t, rm, "botline.messages.forwarded"))
	assert.Equal(t, int64(1), gaugeValue(t, rm, "botline.correlations.waiting_recipients"))
	assert.Equal(t, int64(1), gaugeValue(t, rm, "botline.correlations.pending_replies"))
	assert.Equal(t, int64(0), gaugeValue(t, rm, "botline.correlations.in_flight"))

	h.orch.HandleReplies(ctx, []BotReply{{ReplyToID: "conv|0000001", Text: "hello"}})

	rm = collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumValue(t, rm, "botline.replies.delivered"))
	assert.Equal(t, int64(0), gaugeValue(t, rm, "botline.correlations.waiting_recipients"))
}

func TestMetrics_ReplyBeforeRecipientCountedOnce(t *testing.T) {
	provider, reader := setupMetricsTest(t)
	h := newHarness(t, 30*time.Second, WithMetrics(NewMetricsRecorder(provider)))
	ctx := context.Background()

	h.out.onSend = func(id string) {
		h.orch.HandleReplies(ctx, []BotReply{{ReplyToID: id, Text: "early"}})
	}
	require.NoError(t, h.orch.HandleMessage(ctx, userMessage("dm-1", "hi")))
	require.Len(t, h.pub.Sent(), 1)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumValue(t, rm, "botline.replies.observed"))
	assert.Equal(t, int64(1), sumValue(t, rm, "botline.replies.pending_matched"))
	assert.Equal(t, int64(1), sumValue(t, rm, "botline.replies.delivered"))
}

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordForward(ctx, "twitter", nil)
		m.RecordReply(ctx, ReplyIgnored)
		m.RecordPendingMatch(ctx)
		m.RecordDelivery(ctx, "twitter", time.Millisecond, errors.New("x"))
	})
}
