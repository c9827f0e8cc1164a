// Package requesttime provides middleware and utilities for request-scoped time.
// All operations within a single request use the same "now", so validity checks,
// issue times and event timestamps of one registry operation agree.
package requesttime

import (
	"context"
	"net/http"
	"time"

	"vcregistry/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set.
func Now(ctx context.Context) time.Time {
	return requestcontext.Now(ctx)
}

// Unix returns the request-scoped time in whole seconds, the resolution of
// issue and expiration times.
func Unix(ctx context.Context) uint64 {
	sec := requestcontext.Now(ctx).Unix()
	if sec < 0 {
		return 0
	}
	return uint64(sec)
}

// WithTime injects a specific time into a context.
// Used by service tests that don't run the HTTP middleware chain.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return requestcontext.WithTime(ctx, t)
}
