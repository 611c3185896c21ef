package chat

import (
	"sync"

	"github.com/pacman82/klatsch/metrics"
)

// HubCapacity is the number of most recent events the broadcast hub keeps
// for live fan-out. A subscriber that falls behind by more than this many
// events is considered lagged and must fall back to the persistent history.
const HubCapacity = 10

// Hub is a process-local, non-blocking fan-out of events to live
// subscribers. It is an optimisation over polling persistence: when a
// subscriber falls too far behind, the hub says so rather than silently
// dropping events, so the no-gap invariant is enforced here instead of by
// convention at the call site.
type Hub struct {
	mu       sync.Mutex
	capacity int
	ring     []Event
	notify   chan struct{}
	closed   bool
}

// NewHub creates a Hub that retains up to capacity recent events for
// fan-out.
func NewHub(capacity int) *Hub {
	return &Hub{
		capacity: capacity,
		notify:   make(chan struct{}),
	}
}

// Publish broadcasts event to every current and future-waiting subscriber.
// It never blocks: subscribers that are not actively waiting simply observe
// the event on their next Recv, or lag past it if the ring fills before
// they get to it. Publishing with no subscribers is a no-op beyond
// rotating the ring.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	if len(h.ring) >= h.capacity {
		h.ring = h.ring[1:]
	}
	h.ring = append(h.ring, event)
	old := h.notify
	h.notify = make(chan struct{})
	h.mu.Unlock()
	close(old)
	metrics.EventsBroadcastTotal.Inc()
}

// Close marks the hub as shut down. Every blocked and future Recv call
// returns Closed. Close is called by the coordinator when its actor loop
// exits on Shutdown; further calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	old := h.notify
	h.mu.Unlock()
	close(old)
}

// Subscribe returns a Subscription that observes every event with id >
// after. after must be the id the caller has already consumed (typically
// the lastEventID of the ReadEvents request that produced an empty
// catch-up), not inferred from the ring: the ring is empty after every
// process restart even when persisted history is not, and seeding the
// cursor from the ring's latest entry in that case would report a
// spurious Lagged on the very first live event.
func (h *Hub) Subscribe(after EventID) *Subscription {
	return &Subscription{hub: h, cursor: after}
}

// Subscription is a single subscriber's view into a Hub.
type Subscription struct {
	hub    *Hub
	cursor EventID
}

// RecvResult is the outcome of a single Subscription.Recv call.
type RecvResult struct {
	// Event is valid only when neither Lagged nor Closed is set.
	Event Event
	// Lagged means the subscriber's next wanted event has already been
	// evicted from the ring. The caller must re-query persistence from
	// its last observed event id; the hub does not attempt to replay
	// skipped events, since persistence, not the ring, is authoritative.
	Lagged bool
	// Closed means the hub has been shut down; no further events will
	// ever be delivered.
	Closed bool
}

// Recv blocks until the next event, a lag signal, closure, or cancellation
// via done. done is typically a context's Done() channel.
func (s *Subscription) Recv(done <-chan struct{}) RecvResult {
	for {
		h := s.hub
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return RecvResult{Closed: true}
		}

		if len(h.ring) == 0 {
			notify := h.notify
			h.mu.Unlock()
			select {
			case <-notify:
				continue
			case <-done:
				return RecvResult{Closed: true}
			}
		}

		oldest := h.ring[0].ID
		latest := h.ring[len(h.ring)-1].ID
		wanted := s.cursor.Successor()

		switch {
		case wanted < oldest:
			// More than capacity events were published while we were not
			// reading; the ones we missed are gone from the ring.
			s.cursor = latest
			h.mu.Unlock()
			metrics.SubscriberLagTotal.Inc()
			return RecvResult{Lagged: true}
		case wanted <= latest:
			idx := int(wanted - oldest)
			event := h.ring[idx]
			s.cursor = event.ID
			h.mu.Unlock()
			return RecvResult{Event: event}
		default:
			// Caught up with everything currently in the ring; wait for
			// the next publish.
			notify := h.notify
			h.mu.Unlock()
			select {
			case <-notify:
				continue
			case <-done:
				return RecvResult{Closed: true}
			}
		}
	}
}
