package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pacman82/klatsch/chat"
)

// httpMessage is the wire shape of a Message as it appears in an SSE
// frame's data field.
type httpMessage struct {
	ID          string `json:"id"`
	Sender      string `json:"sender"`
	Content     string `json:"content"`
	TimestampMs uint64 `json:"timestamp_ms"`
}

// EventsHandler serves GET /api/v0/events: a Server-Sent Events stream of
// every chat event, starting just after the id named by the client's
// Last-Event-ID header (or from the beginning, if absent).
type EventsHandler struct {
	client       chat.Client
	shuttingDown context.Context
}

// NewEventsHandler builds an EventsHandler. shuttingDown is cancelled once
// to drain every open stream cleanly during process shutdown.
func NewEventsHandler(client chat.Client, shuttingDown context.Context) *EventsHandler {
	return &EventsHandler{client: client, shuttingDown: shuttingDown}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastEventID := parseLastEventID(r.Header.Get("Last-Event-ID"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-h.shuttingDown.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	events := h.client.Subscribe(ctx, lastEventID)
	for item := range chat.TerminateOnShutdown(ctx, events) {
		if item.Err != nil {
			// No `id:` field: the client's Last-Event-ID must not advance
			// past the last event it actually received.
			writeSSEError(w, "Internal server error")
			flusher.Flush()
			continue
		}

		event := item.Event
		msg := httpMessage{
			ID:          event.Message.ID.String(),
			Sender:      event.Message.Sender,
			Content:     event.Message.Content,
			TimestampMs: event.TimestampMs,
		}
		body, err := json.Marshal(msg)
		if err != nil {
			writeSSEError(w, "Internal server error")
			flusher.Flush()
			continue
		}
		fmt.Fprintf(w, "id: %s\ndata: %s\n\n", event.ID, body)
		flusher.Flush()
	}
}

func writeSSEError(w http.ResponseWriter, message string) {
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", message)
}

// parseLastEventID extracts the id an EventSource client last observed, per
// the standard Last-Event-ID reconnection header. A missing or unparsable
// header means the client has seen nothing yet.
func parseLastEventID(header string) chat.EventID {
	if header == "" {
		return chat.BeforeAll
	}
	id, err := chat.ParseEventID(header)
	if err != nil {
		return chat.BeforeAll
	}
	return id
}
