package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *SQLiteHistory) {
	t.Helper()
	history, err := OpenSQLiteHistory(context.Background(), "")
	require.NoError(t, err)
	hub := NewHub(HubCapacity)
	coord := NewCoordinator(history, hub)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = coord.Shutdown(ctx)
		_ = history.Close()
	})
	return coord, history
}

func recvEvent(t *testing.T, ch <-chan StreamItem, timeout time.Duration) Event {
	t.Helper()
	select {
	case item, ok := <-ch:
		require.True(t, ok, "channel closed before an event arrived")
		require.NoError(t, item.Err)
		return item.Event
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		panic("unreachable")
	}
}

func assertNoEvent(t *testing.T, ch <-chan StreamItem, wait time.Duration) {
	t.Helper()
	select {
	case item, ok := <-ch:
		if ok {
			t.Fatalf("unexpected item delivered: %+v", item)
		}
	case <-time.After(wait):
	}
}

func TestClient_SubscribeForwardsHistory(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	client := coord.Client()
	ctx := context.Background()

	require.NoError(t, client.Submit(ctx, Message{ID: uuid.New(), Sender: "alice", Content: "one"}))
	require.NoError(t, client.Submit(ctx, Message{ID: uuid.New(), Sender: "alice", Content: "two"}))

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := client.Subscribe(subCtx, BeforeAll)

	first := recvEvent(t, events, time.Second)
	second := recvEvent(t, events, time.Second)
	assert.Equal(t, "one", first.Message.Content)
	assert.Equal(t, "two", second.Message.Content)
	assert.Equal(t, first.ID.Successor(), second.ID)
}

func TestClient_SubmitForwardsToHistory(t *testing.T) {
	coord, history := newTestCoordinator(t)
	client := coord.Client()
	ctx := context.Background()

	require.NoError(t, client.Submit(ctx, Message{ID: uuid.New(), Sender: "alice", Content: "hi"}))

	events, err := history.EventsSince(ctx, BeforeAll)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "hi", events[0].Message.Content)
}

func TestClient_DuplicateMessageIsNotBroadcast(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	client := coord.Client()
	ctx := context.Background()
	msg := Message{ID: uuid.New(), Sender: "alice", Content: "hi"}

	require.NoError(t, client.Submit(ctx, msg))

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := client.Subscribe(subCtx, BeforeAll)
	_ = recvEvent(t, events, time.Second)

	require.NoError(t, client.Submit(ctx, msg))

	assertNoEvent(t, events, 50*time.Millisecond)
}

func TestClient_ConflictErrorIsForwarded(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	client := coord.Client()
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, client.Submit(ctx, Message{ID: id, Sender: "alice", Content: "hi"}))
	err := client.Submit(ctx, Message{ID: id, Sender: "alice", Content: "different"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCoordinator_ShutdownCompletesWithinOneSecond(t *testing.T) {
	coord, history := newTestCoordinator(t)
	_ = history

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, coord.Shutdown(ctx))
}

func TestClient_EventStreamTransitionsFromHistoryToLive(t *testing.T) {
	// Registered first so it runs last, after the coordinator's cleanup.
	t.Cleanup(func() { goleak.VerifyNone(t) })

	coord, _ := newTestCoordinator(t)
	client := coord.Client()
	ctx := context.Background()

	require.NoError(t, client.Submit(ctx, Message{ID: uuid.New(), Sender: "alice", Content: "from history"}))

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := client.Subscribe(subCtx, BeforeAll)

	historical := recvEvent(t, events, time.Second)
	assert.Equal(t, "from history", historical.Message.Content)

	require.NoError(t, client.Submit(ctx, Message{ID: uuid.New(), Sender: "alice", Content: "live"}))
	live := recvEvent(t, events, time.Second)
	assert.Equal(t, "live", live.Message.Content)
	assert.Equal(t, historical.ID.Successor(), live.ID)
}

func TestClient_SubscribeDeliversNewHistoryOnReRequest(t *testing.T) {
	coord, history := newTestCoordinator(t)
	client := coord.Client()
	ctx := context.Background()

	require.NoError(t, client.Submit(ctx, Message{ID: uuid.New(), Sender: "alice", Content: "first"}))
	firstID := history.LastEventID()

	subCtx, cancel := context.WithCancel(ctx)
	events := client.Subscribe(subCtx, firstID)
	cancel()
	assertNoEvent(t, events, 50*time.Millisecond)

	require.NoError(t, client.Submit(ctx, Message{ID: uuid.New(), Sender: "alice", Content: "second"}))
	secondID := history.LastEventID()

	subCtx2, cancel2 := context.WithCancel(ctx)
	defer cancel2()
	events2 := client.Subscribe(subCtx2, firstID)
	got := recvEvent(t, events2, time.Second)
	assert.Equal(t, secondID, got.ID)
	assert.Equal(t, "second", got.Message.Content)
}

func TestClient_StateIsSharedBetweenClients(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	clientA := coord.Client()
	clientB := coord.Client()
	ctx := context.Background()

	require.NoError(t, clientA.Submit(ctx, Message{ID: uuid.New(), Sender: "alice", Content: "hi"}))

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := clientB.Subscribe(subCtx, BeforeAll)
	got := recvEvent(t, events, time.Second)
	assert.Equal(t, "hi", got.Message.Content)
}

func TestClient_SlowReceiverRecoversAfterBurst(t *testing.T) {
	coord, history := newTestCoordinator(t)
	client := coord.Client()
	ctx := context.Background()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := client.Subscribe(subCtx, BeforeAll)

	const burst = 1000
	for i := 0; i < burst; i++ {
		require.NoError(t, client.Submit(ctx, Message{ID: uuid.New(), Sender: "alice", Content: "msg"}))
	}

	var last EventID
	for i := 0; i < burst; i++ {
		e := recvEvent(t, events, 2*time.Second)
		require.Greater(t, uint64(e.ID), uint64(last))
		last = e.ID
	}
	assert.Equal(t, history.LastEventID(), last)
}

// failingHistory always fails EventsSince, simulating a transient storage
// I/O error on catch-up.
type failingHistory struct{}

func (failingHistory) EventsSince(ctx context.Context, lastEventID EventID) ([]Event, error) {
	return nil, errors.New("simulated storage failure")
}

func (failingHistory) RecordMessage(ctx context.Context, message Message) (RecordOutcome, error) {
	return RecordOutcome{}, errors.New("simulated storage failure")
}

func TestClient_SubscribeSurfacesHistoryReadError(t *testing.T) {
	// Registered first so it runs last, after the coordinator's cleanup.
	t.Cleanup(func() { goleak.VerifyNone(t) })

	hub := NewHub(HubCapacity)
	coord := NewCoordinator(failingHistory{}, hub)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = coord.Shutdown(ctx)
	})
	client := coord.Client()

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := client.Subscribe(subCtx, BeforeAll)

	select {
	case item, ok := <-events:
		require.True(t, ok, "channel closed before the error arrived")
		require.Error(t, item.Err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the error item")
	}

	_, ok := <-events
	assert.False(t, ok, "stream must close once a history read error has been surfaced")
}
