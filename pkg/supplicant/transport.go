package supplicant

import "context"

// Transport is the connection to the supplicant daemon.
//
// Send performs one request/response exchange. Implementations are not
// required to be safe for concurrent Send calls; package command serializes
// them. OpenEvents returns a fresh notification source and may be called
// again after a previous source reported ErrDisconnected.
type Transport interface {
	Send(ctx context.Context, cmd Command) (Response, error)
	OpenEvents(ctx context.Context) (EventSource, error)
	Close() error
}

// EventSource yields asynchronous notifications in the order the supplicant
// emitted them.
type EventSource interface {
	// Receive blocks until the next notification arrives. It returns an
	// error wrapping ErrDisconnected once the source is closed or lost.
	Receive() (Event, error)

	// Close releases the source and unblocks a pending Receive.
	Close() error
}
