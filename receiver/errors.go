package receiver

import "errors"

// ErrClosed is returned by Run when the underlying socket is closed out
// from under it, so the caller can tell a deliberate shutdown apart from a
// genuine I/O failure without inspecting net.ErrClosed itself.
var ErrClosed = errors.New("receiver: connection closed")
