package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/pacman82/klatsch/metrics"
)

// RingLen returns the number of events currently retained in the hub's
// ring buffer, mostly useful for observability.
func (h *Hub) RingLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ring)
}

// RunStatsLog periodically logs a snapshot of hub and history state until
// ctx is cancelled. It is purely observational: nothing it reads feeds back
// into coordinator behaviour.
func RunStatsLog(ctx context.Context, interval time.Duration, hub *Hub, history *SQLiteHistory) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lastEventID := history.LastEventID()
			ringLen := hub.RingLen()
			metrics.LastEventID.Set(float64(lastEventID))
			metrics.HubRingLen.Set(float64(ringLen))
			slog.Info("chat stats", "last_event_id", lastEventID, "hub_ring_len", ringLen)
		}
	}
}
