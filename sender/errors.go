package sender

import "errors"

var (
	// ErrWindowFull is returned by Send when the window already holds
	// WindowSize in-flight segments.
	ErrWindowFull = errors.New("sender: window full")
	// ErrClosed is returned by Send/Close once the sender has left the
	// ESTABLISHED state.
	ErrClosed = errors.New("sender: connection closed")
)
