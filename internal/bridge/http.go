// ABOUTME: HTTP status endpoints for the bridge
// ABOUTME: Serves health, the correlations snapshot, ledger queries and a live event stream

package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/2389/botline/internal/store"
)

// NewHTTPHandler returns a mux serving the status endpoints for o.
func NewHTTPHandler(o *Orchestrator) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /health/ready", func(w http.ResponseWriter, r *http.Request) {
		handleReady(w, o)
	})
	mux.HandleFunc("GET /api/correlations", o.handleCorrelations)
	mux.HandleFunc("GET /api/events", o.handleRecentEvents)
	mux.HandleFunc("GET /api/events/stream", o.handleEventStream)
	mux.HandleFunc("GET /api/events/by-id/{eventID}", o.handleEvent)
	mux.HandleFunc("GET /api/events/{correlationID}", o.handleCorrelationEvents)
	return mux
}

// handleHealth returns 200 OK as long as the process is up.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the orchestrator is attached to its sources.
func handleReady(w http.ResponseWriter, o *Orchestrator) {
	if !o.Attached() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not attached"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// correlationsResponse is the live correlation snapshot plus ledger totals.
type correlationsResponse struct {
	Stats
	Ledger map[store.Status]int `json:"ledger,omitempty"`
}

// handleCorrelations returns the correlation counts. When a ledger is
// configured the per-status event counts are included; a failed count is
// logged and left out.
func (o *Orchestrator) handleCorrelations(w http.ResponseWriter, r *http.Request) {
	resp := correlationsResponse{Stats: o.Stats()}
	if o.ledger != nil {
		counts, err := o.ledger.CountEventsByStatus(r.Context())
		if err != nil {
			o.logger.Warn("counting ledger events failed", "error", err)
		} else {
			resp.Ledger = counts
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// eventResponse is the JSON form of a ledger event.
type eventResponse struct {
	ID            string  `json:"id"`
	CorrelationID string  `json:"correlation_id,omitempty"`
	Direction     string  `json:"direction"`
	Frontend      string  `json:"frontend"`
	Peer          string  `json:"peer"`
	Author        string  `json:"author"`
	Text          *string `json:"text,omitempty"`
	Status        string  `json:"status"`
	Error         *string `json:"error,omitempty"`
	Timestamp     string  `json:"timestamp"`
}

func toEventResponse(e *store.LedgerEvent) eventResponse {
	return eventResponse{
		ID:            e.ID,
		CorrelationID: e.CorrelationID,
		Direction:     string(e.Direction),
		Frontend:      e.Frontend,
		Peer:          e.Peer,
		Author:        e.Author,
		Text:          e.Text,
		Status:        string(e.Status),
		Error:         e.Error,
		Timestamp:     e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func toEventResponses(events []*store.LedgerEvent) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e))
	}
	return out
}

// handleRecentEvents returns the newest ledger events. ?limit= caps the count.
func (o *Orchestrator) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if o.ledger == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "ledger disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events, err := o.ledger.ListRecentEvents(r.Context(), limit)
	if err != nil {
		o.logger.Error("listing ledger events failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toEventResponses(events))
}

// handleEvent returns one ledger event by its id.
func (o *Orchestrator) handleEvent(w http.ResponseWriter, r *http.Request) {
	if o.ledger == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "ledger disabled")
		return
	}

	event, err := o.ledger.GetEvent(r.Context(), r.PathValue("eventID"))
	if errors.Is(err, store.ErrEventNotFound) {
		writeJSONError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		o.logger.Error("getting ledger event failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(event))
}

// handleCorrelationEvents returns the ledger history of one correlation id.
func (o *Orchestrator) handleCorrelationEvents(w http.ResponseWriter, r *http.Request) {
	if o.ledger == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "ledger disabled")
		return
	}

	events, err := o.ledger.ListEventsByCorrelation(r.Context(), r.PathValue("correlationID"))
	if err != nil {
		o.logger.Error("listing correlation events failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(events) == 0 {
		writeJSONError(w, http.StatusNotFound, "correlation not found")
		return
	}
	writeJSON(w, http.StatusOK, toEventResponses(events))
}

// handleEventStream streams recorded events as server-sent events until the
// client disconnects. ?peer= limits the stream to one recipient.
func (o *Orchestrator) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if o.feed == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "event feed disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		o.logger.Error("streaming not supported")
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	events, _ := o.feed.Subscribe(ctx, r.URL.Query().Get("peer"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, string(e.Direction), toEventResponse(e)); err != nil {
				o.logger.Debug("writing event stream failed", slog.String("error", err.Error()))
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one event in the standard format:
// event: <type>\ndata: <json>\n\n
func writeSSEEvent(w http.ResponseWriter, event string, data any) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, dataJSON)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
