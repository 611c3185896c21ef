package chat

import "context"

// TerminateOnShutdown wraps in with a filter that stops forwarding events
// as soon as ctx is done, without waiting for in itself to produce another
// value or close. If in closes first, on its own, the returned channel
// closes immediately after — shutdown is never required for a naturally
// ending stream to terminate.
//
// This is the HTTP layer's building block for turning "the process is
// shutting down" into "this SSE response ends now": the handler cancels a
// shared shutdown context and every in-flight subscription stream unwinds
// within one select step, regardless of how many events in still has
// buffered. It is generic so it works equally over a raw Event stream and
// over a Client.Subscribe StreamItem stream.
func TerminateOnShutdown[T any](ctx context.Context, in <-chan T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			select {
			case <-ctx.Done():
				return
			case item, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- item:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
