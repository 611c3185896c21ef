package chat

import "errors"

// ErrConflict is returned by Client.Submit when a different message already
// occupies the submitted message's client-generated id. The message has not
// been recorded; the client is expected to retry with a fresh id.
var ErrConflict = errors.New("chat: a different message with this id already exists")

// ErrInternal is returned by Client.Submit when the history store failed in
// a way the caller cannot recover from. The underlying cause has already
// been logged; it is not surfaced to the caller to avoid leaking internal
// state.
var ErrInternal = errors.New("chat: internal error")
