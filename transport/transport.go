// Package transport owns the duplex byte-frame boundary between the
// dispatch engines and a concrete link.
//
// Ownership boundary:
// - the Transport interface both peers depend on
// - the in-memory Pair used by tests and loopback wiring
package transport

import (
	"context"
	"errors"
)

// ErrClosed reports that the link is gone. Every operation on a closed
// transport fails with an error wrapping it.
var ErrClosed = errors.New("transport: closed")

// Transport is one reliable duplex frame link. Frames go out atomically and
// arrive whole, in order; there is no partial delivery. Implementations
// must allow SendFrame and RecvFrame from different goroutines.
type Transport interface {
	// SendFrame transmits one frame. The frame is consumed before return:
	// callers may reuse the backing buffer immediately.
	SendFrame(ctx context.Context, frame []byte) error

	// RecvFrame yields the next frame as delivered by the link. End of
	// stream or a fatal link error returns an error wrapping ErrClosed.
	RecvFrame(ctx context.Context) ([]byte, error)

	// Close tears the link down. Safe to call more than once.
	Close() error
}
