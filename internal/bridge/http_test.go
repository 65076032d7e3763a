// ABOUTME: Tests for the bridge status endpoints
// ABOUTME: Verifies health, readiness, the correlations snapshot, ledger queries and the event stream

package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/botline/internal/feed"
)

func TestHTTPHandler_Health(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	handler := NewHTTPHandler(h.orch)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHTTPHandler_Ready(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	handler := NewHTTPHandler(h.orch)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, h.orch.Attach(make(chan InboundMessage), make(chan []BotReply)))
	defer h.orch.Detach()

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPHandler_Correlations(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	handler := NewHTTPHandler(h.orch)
	ctx := context.Background()

	require.NoError(t, h.orch.HandleMessage(ctx, userMessage("dm-1", "hi")))
	h.orch.HandleReplies(ctx, []BotReply{{ReplyToID: "conv|other", Text: "orphan"}})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/correlations", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Stats
		Ledger map[string]int `json:"ledger"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, Stats{WaitingRecipients: 1, PendingReplies: 1}, body.Stats)
	assert.Equal(t, map[string]int{"sent": 1}, body.Ledger)
}

func TestHTTPHandler_CorrelationsWithoutLedger(t *testing.T) {
	h := newHarness(t, 30*time.Second, WithLedger(nil))
	handler := NewHTTPHandler(h.orch)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/correlations", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "ledger")
	assert.Contains(t, body, "waiting_recipients")
}

func TestHTTPHandler_MethodNotAllowed(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	handler := NewHTTPHandler(h.orch)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/correlations", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPHandler_RecentEvents(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	handler := NewHTTPHandler(h.orch)
	ctx := context.Background()

	require.NoError(t, h.orch.HandleMessage(ctx, userMessage("dm-1", "hi")))
	h.orch.HandleReplies(ctx, []BotReply{{ReplyToID: "conv|0000001", Text: "hello", TextFormat: "plain"}})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var events []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "conv|0000001", e["correlation_id"])
		assert.Equal(t, "fake", e["frontend"])
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPHandler_CorrelationEvents(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	handler := NewHTTPHandler(h.orch)
	ctx := context.Background()

	require.NoError(t, h.orch.HandleMessage(ctx, userMessage("dm-1", "hi")))

	rec := httptest.NewRecorder()
	path := "/api/events/" + url.PathEscape("conv|0000001")
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var events []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "to_bot", events[0]["direction"])
	assert.Equal(t, "sent", events[0]["status"])

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPHandler_EventByID(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	handler := NewHTTPHandler(h.orch)
	ctx := context.Background()

	require.NoError(t, h.orch.HandleMessage(ctx, userMessage("dm-1", "hi")))
	recent, err := h.ledger.ListRecentEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/by-id/"+recent[0].ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var event map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
	assert.Equal(t, recent[0].ID, event["id"])
	assert.Equal(t, "hi", event["text"])

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/by-id/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPHandler_EventsWithoutLedger(t *testing.T) {
	h := newHarness(t, 30*time.Second, WithLedger(nil))
	handler := NewHTTPHandler(h.orch)

	for _, path := range []string{"/api/events", "/api/events/abc", "/api/events/by-id/abc", "/api/events/stream"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestHTTPHandler_EventStream(t *testing.T) {
	broadcaster := feed.NewBroadcaster(nil)
	defer broadcaster.Close()

	h := newHarness(t, 30*time.Second, WithFeed(broadcaster))
	srv := httptest.NewServer(NewHTTPHandler(h.orch))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/stream?peer=7", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, 1, broadcaster.Subscribers())

	require.NoError(t, h.orch.HandleMessage(context.Background(), userMessage("dm-1", "hi")))

	lines := make(chan string, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed early")
			if line != "" {
				got = append(got, line)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event, got %v", got)
		}
	}

	assert.Equal(t, "event: to_bot", got[0])
	require.True(t, strings.HasPrefix(got[1], "data: "))
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(got[1], "data: ")), &data))
	assert.Equal(t, "conv|0000001", data["correlation_id"])
	assert.Equal(t, "7", data["peer"])
}
