package chat

import (
	"context"
	"log/slog"

	"github.com/pacman82/klatsch/metrics"
)

// requestChannelCapacity bounds the coordinator's inbox. Clients submitting
// faster than the coordinator can serialise them suspend on send.
const requestChannelCapacity = 5

// request is the sealed set of messages the coordinator actor accepts.
type request interface {
	isRequest()
}

type readEventsRequest struct {
	lastEventID EventID
	reply       chan<- readEventsReply
}

func (*readEventsRequest) isRequest() {}

// readEventsReply carries a catch-up batch from persistence, a live hub
// subscription, or a history read error — exactly one of the three.
type readEventsReply struct {
	Catchup []Event
	Live    *Subscription
	Err     error
}

type submitRequest struct {
	message Message
	reply   chan<- error
}

func (*submitRequest) isRequest() {}

// Coordinator is the single-writer actor owning the persistent History and
// the broadcast Hub. All mutations and catch-up/subscribe decisions are
// serialised through its request channel, which gives the "check history
// empty, then subscribe" step in handleReadEvents for free: nothing else
// ever touches history or hub concurrently.
//
// Unlike a reference-counted channel sender, a Go channel has no notion of
// "last sender dropped", so shutdown is an explicit call rather than an
// automatic consequence of clients going out of scope: Shutdown cancels an
// internal context the actor loop also selects on, and every Client handle
// must already be unused by the time it is called (see Shutdown).
type Coordinator struct {
	requests chan request
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCoordinator starts the coordinator's actor goroutine.
func NewCoordinator(history History, hub *Hub) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		requests: make(chan request, requestChannelCapacity),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.run(ctx, history, hub)
	return c
}

func (c *Coordinator) run(ctx context.Context, history History, hub *Hub) {
	defer close(c.done)
	defer hub.Close()
	for {
		select {
		case req := <-c.requests:
			switch r := req.(type) {
			case *readEventsRequest:
				c.handleReadEvents(ctx, history, hub, r)
			case *submitRequest:
				c.handleSubmit(ctx, history, hub, r)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) handleReadEvents(ctx context.Context, history History, hub *Hub, r *readEventsRequest) {
	events, err := history.EventsSince(ctx, r.lastEventID)

	var reply readEventsReply
	switch {
	case err != nil:
		// A read failure must not be mistaken for "no new events": the
		// caller surfaces this as a terminal stream error rather than
		// silently falling through to a live subscription that would skip
		// whatever backlog EventsSince failed to return.
		slog.Error("failed to read chat history", "error", err)
		reply.Err = err
	case len(events) > 0:
		reply.Catchup = events
	default:
		// Atomic with respect to this goroutine: no event can have been
		// inserted between the EventsSince call above and this Subscribe,
		// because both run on the single actor goroutine with no
		// suspension in between.
		reply.Live = hub.Subscribe(r.lastEventID)
	}

	select {
	case r.reply <- reply:
	default:
		// Caller gave up waiting; nobody is listening for the reply. The
		// side effect (none, for a read) is already complete.
	}
}

func (c *Coordinator) handleSubmit(ctx context.Context, history History, hub *Hub, r *submitRequest) {
	outcome, err := history.RecordMessage(ctx, r.message)
	var result error
	var label string
	switch {
	case err != nil:
		slog.Error("failed to record message", "error", err)
		result = ErrInternal
		label = "storage_failure"
	case outcome.Kind == RecordNew:
		hub.Publish(outcome.Event)
		result = nil
		label = "new"
	case outcome.Kind == RecordDuplicate:
		result = nil
		label = "duplicate"
	case outcome.Kind == RecordConflict:
		result = ErrConflict
		label = "conflict"
	}
	metrics.MessagesSubmittedTotal.WithLabelValues(label).Inc()

	select {
	case r.reply <- result:
	default:
	}
}

// Shutdown signals the actor to stop and blocks until its goroutine has
// exited, closing the hub. The caller must ensure no Client is still
// calling Subscribe or Submit concurrently with Shutdown.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.cancel()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
