// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them, services read them, and
// neither side needs net/http to do so.
package requestcontext

import (
	"context"
	"time"

	id "veristry/pkg/domain"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// RequestID retrieves the request ID from the context, or the zero value.
func RequestID(ctx context.Context) id.RequestID {
	if rid, ok := ctx.Value(requestIDKey{}).(id.RequestID); ok {
		return rid
	}
	return id.RequestID{}
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, rid id.RequestID) context.Context {
	return context.WithValue(ctx, requestIDKey{}, rid)
}

// Now returns the request arrival time when set, falling back to time.Now.
// Tests inject a fixed time with WithTime to keep time-dependent logic
// deterministic.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a fixed request time into the context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
