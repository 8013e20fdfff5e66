package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"caseflow/internal"
)

// Event types published on the event stream.
const (
	EventSessionOpened  = "session_opened"
	EventParamsChanged  = "params_changed"
	EventTargetsLoaded  = "targets_loaded"
	EventAnalysisFailed = "analysis_failed"
)

// Event is one message on the event stream.
type Event struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventHub fans session events out to Server-Sent Events clients. Slow
// clients miss events rather than blocking publishers.
type EventHub struct {
	mu      sync.RWMutex
	clients map[chan Event]struct{}
	ping    time.Duration
	logger  *internal.Logger
}

// NewEventHub creates a hub that pings idle clients every 30 seconds.
func NewEventHub(logger *internal.Logger) *EventHub {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &EventHub{
		clients: make(map[chan Event]struct{}),
		ping:    30 * time.Second,
		logger:  logger.With("sse"),
	}
}

// Subscribe registers a client channel. The returned func unregisters it.
func (h *EventHub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client registered (total clients: %d)", total)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// Broadcast sends e to every client whose buffer has room.
func (h *EventHub) Broadcast(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- e:
		default:
			h.logger.Warn("client channel full, dropping %s event", e.Type)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP streams events until the client disconnects.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := h.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()
	for {
		select {
		case e := <-events:
			payload, err := json.Marshal(e)
			if err != nil {
				h.logger.Error("failed to marshal event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, payload)
			flusher.Flush()
		case t := <-ticker.C:
			fmt.Fprintf(w, "event: ping\ndata: {\"timestamp\":%q}\n\n", t.Format(time.RFC3339))
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
