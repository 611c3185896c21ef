package api

import (
	"context"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/pacman82/klatsch/chat"
	"github.com/pacman82/klatsch/metrics"
)

// NewRouter wires every klatsch HTTP route onto a fresh mux. shuttingDown
// is cancelled once during graceful shutdown, draining every open SSE
// stream.
func NewRouter(client chat.Client, shuttingDown context.Context, staticFS fs.FS) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/v0/events", NewEventsHandler(client, shuttingDown))
	mux.Handle("POST /api/v0/add_message", NewMessagesHandler(client))
	mux.Handle("GET /health", NewHealthHandler())
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("/", NewStaticHandler(staticFS))

	return instrument(mux)
}

// instrument records request duration per route and status code. The SSE
// route's observation covers the whole lifetime of the connection, which
// is intentional: it is the one duration worth watching for unexpectedly
// short-lived streams.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequestDuration.
			WithLabelValues(r.URL.Path, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
