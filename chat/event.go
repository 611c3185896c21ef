// Package chat implements the single-writer chat coordination engine: the
// persistent event log, the in-memory broadcast hub, and the actor that
// serialises access to both.
package chat

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// EventID is a monotonically increasing identifier for a stored Event. The
// zero value means "before any event"; real events are numbered 1, 2, 3, ...
// with no gaps.
type EventID uint64

// BeforeAll is the sentinel EventID used by a client that has not yet
// observed any event.
const BeforeAll EventID = 0

// Successor returns the next EventID after id.
func (id EventID) Successor() EventID {
	return id + 1
}

// String renders the EventID in its textual, base-10 form. It is also used
// as the SSE `id:` field by the HTTP adapter.
func (id EventID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseEventID parses the base-10 textual form produced by String.
func ParseEventID(s string) (EventID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return EventID(v), nil
}

// Message is a client-authored chat message. ID is generated by the client
// (typically a time-ordered UUIDv7) and used to make submission idempotent
// under retry. Sender and Content are opaque UTF-8 strings; the engine
// preserves their bytes exactly and imposes no length limit of its own.
type Message struct {
	ID      uuid.UUID `json:"id"`
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
}

// Event is the immutable, server-assigned record of an accepted Message.
// Once stored and emitted to a subscriber, an Event's fields never change.
type Event struct {
	ID          EventID
	Message     Message
	TimestampMs uint64
}

// Clock is a source of the current wall-clock time, from which newly
// recorded events take their milliseconds since the Unix epoch. Production
// code uses time.Now; tests can substitute a fixed or controllable clock.
type Clock func() time.Time

// newEvent stamps message with id and the current time as reported by now.
func newEvent(id EventID, message Message, now Clock) Event {
	return Event{
		ID:          id,
		Message:     message,
		TimestampMs: uint64(now().UnixMilli()),
	}
}
