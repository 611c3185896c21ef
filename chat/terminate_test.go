package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestTerminateOnShutdown_StopsAnInfiniteStream(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := make(chan Event)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		id := EventID(0)
		for {
			id = id.Successor()
			select {
			case in <- Event{ID: id}:
			case <-stop:
				return
			case <-time.After(time.Second):
				return
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	out := TerminateOnShutdown(ctx, in)

	<-out
	<-out
	cancel()

	_, ok := <-out
	assert.False(t, ok, "stream should end once shutdown fires")
}

func TestTerminateOnShutdown_IsImmediateOnceCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := make(chan Event)
	defer close(in)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := TerminateOnShutdown(ctx, in)

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("terminated stream did not close promptly")
	}
}

func TestTerminateOnShutdown_EndsWhenUnderlyingStreamEndsEvenIfNotShuttingDown(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := make(chan Event)
	ctx := context.Background()
	out := TerminateOnShutdown(ctx, in)

	close(in)

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("stream did not end after underlying channel closed")
	}
}

func TestTerminateOnShutdown_ForwardsUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := make(chan Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := TerminateOnShutdown(ctx, in)

	in <- Event{ID: 1}
	got := <-out
	require.Equal(t, EventID(1), got.ID)
}
