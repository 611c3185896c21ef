package chat

import "context"

// Client is a handle for interacting with a running Coordinator. It is a
// small value type wrapping only the send-end of the coordinator's request
// channel, so copying a Client (passing it by value, storing it in a
// struct) is the handle's "clone" operation — cheap, and safe to use from
// many goroutines concurrently.
type Client struct {
	requests chan<- request
}

// Client returns a new handle to c. Every returned Client shares the same
// underlying coordinator.
func (c *Coordinator) Client() Client {
	return Client{requests: c.requests}
}

// Submit records message and, on success, makes it visible to every
// subscriber. It returns nil for a newly recorded message or an idempotent
// duplicate retry, ErrConflict if a different message already holds this
// id, or ErrInternal if the store failed.
func (c Client) Submit(ctx context.Context, message Message) error {
	reply := make(chan error, 1)
	select {
	case c.requests <- &submitRequest{message: message, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StreamItem is a single item produced by Client.Subscribe: either a
// successfully delivered Event, or a terminal Err. Once an item with a
// non-nil Err is sent, it is the last item and the channel is closed
// immediately after — a history read failure must never be mistaken for
// "no more events right now."
type StreamItem struct {
	Event Event
	Err   error
}

// Subscribe returns a channel of every Event with id > lastEventID, in
// order, followed by every event recorded afterwards, for as long as ctx
// remains live. The channel is closed when ctx is done, the coordinator
// shuts down, or a StreamItem with a non-nil Err has been delivered.
//
// Internally this drives the dual-mode catch-up/live protocol: a
// ReadEvents request either returns a batch of already-persisted events
// (Catchup), a live hub subscription (Live), or a history read error
// (Err). A Lagged signal from the live subscription sends the protocol
// back to a fresh history query seeded with the last event actually
// emitted, so no event is ever skipped or repeated regardless of how slow
// the consumer is at draining the returned channel.
func (c Client) Subscribe(ctx context.Context, lastEventID EventID) <-chan StreamItem {
	out := make(chan StreamItem)
	go c.subscribe(ctx, lastEventID, out)
	return out
}

func (c Client) subscribe(ctx context.Context, lastEventID EventID, out chan<- StreamItem) {
	defer close(out)
	current := lastEventID

outer:
	for {
		reply := make(chan readEventsReply, 1)
		select {
		case c.requests <- &readEventsRequest{lastEventID: current, reply: reply}:
		case <-ctx.Done():
			return
		}

		var r readEventsReply
		select {
		case r = <-reply:
		case <-ctx.Done():
			return
		}

		if r.Err != nil {
			select {
			case out <- StreamItem{Err: r.Err}:
			case <-ctx.Done():
			}
			return
		}

		if len(r.Catchup) > 0 {
			for _, event := range r.Catchup {
				current = event.ID
				select {
				case out <- StreamItem{Event: event}:
				case <-ctx.Done():
					return
				}
			}
			continue outer
		}

		sub := r.Live
		for {
			result := sub.Recv(ctx.Done())
			switch {
			case result.Closed:
				return
			case result.Lagged:
				// Persistence is authoritative; re-ask it from the last
				// id we actually emitted rather than trust the ring.
				continue outer
			default:
				current = result.Event.ID
				select {
				case out <- StreamItem{Event: result.Event}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
