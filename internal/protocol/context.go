package protocol

import "context"

type requestIDKey struct{}

// WithRequestID attaches the request id being dispatched to ctx, so an
// Emitter invoked asynchronously (replay's result/error) can still echo
// it per SPEC_FULL.md §4.1 ("result and error carry the same id as the
// request").
func WithRequestID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id stashed by WithRequestID, if any.
func RequestIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(requestIDKey{}).(int64)
	return id, ok
}
