// ABOUTME: Tests for the Twitter DM client against an httptest server
// ABOUTME: Covers auth, event filtering and dedupe, ordering, publishing and error mapping

package twitter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/botline/internal/bridge"
)

var startTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeAPI struct {
	t *testing.T

	mu     sync.Mutex
	events dmEventsResponse
	sent   map[string][]string
	status int
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /2/dm_events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, "Bearer tw-token", r.Header.Get("Authorization"))
		assert.Equal(f.t, "MessageCreate", r.URL.Query().Get("event_types"))
		assert.Equal(f.t, "sender_id", r.URL.Query().Get("expansions"))

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.status != 0 {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(f.status)
			w.Write([]byte(`{"title":"Too Many Requests","detail":"Too Many Requests","status":429}`))
			return
		}
		json.NewEncoder(w).Encode(f.events)
	})

	mux.HandleFunc("POST /2/dm_conversations/with/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, "Bearer tw-token", r.Header.Get("Authorization"))

		var req sendMessageRequest
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.status != 0 {
			w.WriteHeader(f.status)
			w.Write([]byte("unavailable"))
			return
		}
		f.sent[r.PathValue("id")] = append(f.sent[r.PathValue("id")], req.Text)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(sendMessageResponse{})
	})

	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	return newTestClientWithDedupeTTL(t, 0)
}

func newTestClientWithDedupeTTL(t *testing.T, ttl time.Duration) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{t: t, sent: make(map[string][]string)}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	client, err := New(Config{
		APIBase:      srv.URL,
		BearerToken:  "tw-token",
		UserID:       "1000",
		PollInterval: 10 * time.Millisecond,
		DedupeTTL:    ttl,
	}, WithHTTPClient(srv.Client()), WithStartTime(startTime))
	require.NoError(t, err)
	return client, api
}

func event(id, sender, text string, at time.Time) dmEvent {
	return dmEvent{ID: id, EventType: "MessageCreate", Text: text, SenderID: sender, CreatedAt: at}
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{UserID: "1000"})
	assert.Error(t, err)

	_, err = New(Config{BearerToken: "t"})
	assert.Error(t, err)
}

func TestClient_Name(t *testing.T) {
	client, _ := newTestClient(t)
	assert.Equal(t, "twitter", client.Name())
}

func TestClient_PollFiltersAndOrders(t *testing.T) {
	client, api := newTestClient(t)

	api.events.Data = []dmEvent{
		event("5", "42", "newest", startTime.Add(3*time.Minute)),
		event("4", "1000", "from the bot itself", startTime.Add(2*time.Minute)),
		event("3", "42", "oldest new", startTime.Add(time.Minute)),
		event("2", "42", "", startTime.Add(time.Minute)),
		event("1", "42", "before start", startTime.Add(-time.Minute)),
	}
	api.events.Includes.Users = []user{{ID: "42", Name: "Alice", Username: "alice"}}

	messages, err := client.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, bridge.InboundMessage{
		PlatformID: "3",
		SenderID:   "42",
		SenderName: "alice",
		ChannelID:  "42",
		Text:       "oldest new",
	}, messages[0])
	assert.Equal(t, "5", messages[1].PlatformID)
}

func TestClient_PollSkipsSeenEvents(t *testing.T) {
	client, api := newTestClient(t)
	api.events.Data = []dmEvent{event("1", "42", "hi", startTime.Add(time.Second))}

	first, err := client.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := client.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestClient_PollSkipsListedEventsAfterDedupeExpiry(t *testing.T) {
	client, api := newTestClientWithDedupeTTL(t, 20*time.Millisecond)
	api.events.Data = []dmEvent{
		event("2", "42", "second", startTime.Add(2*time.Second)),
		event("1", "42", "first", startTime.Add(time.Second)),
	}

	first, err := client.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)

	// The listing still carries both events once the dedupe cache forgot them
	time.Sleep(60 * time.Millisecond)

	second, err := client.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestClient_PollEventsSharingTimestamp(t *testing.T) {
	client, api := newTestClientWithDedupeTTL(t, 20*time.Millisecond)
	at := startTime.Add(time.Second)
	api.events.Data = []dmEvent{event("1", "42", "hi", at)}

	first, err := client.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	time.Sleep(60 * time.Millisecond)

	// A new event with the same timestamp is forwarded; the old one is not
	api.events.Data = []dmEvent{
		event("2", "43", "hello", at),
		event("1", "42", "hi", at),
	}
	second, err := client.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "2", second[0].PlatformID)
}

func TestClient_PollDropsEventsOlderThanNewestForwarded(t *testing.T) {
	client, api := newTestClient(t)
	api.events.Data = []dmEvent{event("2", "42", "newer", startTime.Add(time.Minute))}

	first, err := client.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	api.events.Data = []dmEvent{
		event("2", "42", "newer", startTime.Add(time.Minute)),
		event("1", "43", "late arrival", startTime.Add(time.Second)),
	}
	second, err := client.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestClient_PollError(t *testing.T) {
	client, api := newTestClient(t)
	api.status = http.StatusTooManyRequests

	_, err := client.Poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "Too Many Requests")
}

func TestClient_Publish(t *testing.T) {
	client, api := newTestClient(t)

	require.NoError(t, client.Publish(context.Background(), "hello alice", "42", "alice"))

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []string{"hello alice"}, api.sent["42"])
}

func TestClient_PublishError(t *testing.T) {
	client, api := newTestClient(t)
	api.status = http.StatusServiceUnavailable

	err := client.Publish(context.Background(), "hello", "42", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alice")
	assert.Contains(t, err.Error(), "503")
}

func TestClient_RunEmitsMessages(t *testing.T) {
	client, api := newTestClient(t)
	api.events.Data = []dmEvent{event("1", "42", "hi", startTime.Add(time.Second))}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan bridge.InboundMessage, 4)
	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx, out)
	}()

	select {
	case msg := <-out:
		assert.Equal(t, "hi", msg.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	// Repeated polls return the same event; it must not be emitted again
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, out)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
