package transport

import "errors"

var (
	// ErrClosed marks the orderly end of a channel: a close frame from the
	// peer, or a read after the local side closed.
	ErrClosed       = errors.New("transport: closed")
	ErrNotConnected = errors.New("transport: not connected")
)
