// Package transport defines the physical bidirectional message channel
// the protocol layer depends on, per SPEC_FULL.md §4.7: an opaque "send
// JSON text frame / receive JSON text frame" pipe, out of the core's
// scope per spec.md §1/§6.
package transport

import "context"

// Transport is the minimal interface the core depends on. Implementations
// must serialize concurrent Send calls themselves (the core may call Send
// from both the serial handler loop and a concurrent replay goroutine).
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}
