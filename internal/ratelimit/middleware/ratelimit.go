// Package middleware enforces per-caller request budgets on the registry's
// mutating routes.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"vcregistry/internal/platform/privacy"
	"vcregistry/internal/ratelimit/metrics"
	"vcregistry/internal/ratelimit/models"
	"vcregistry/internal/ratelimit/store/bucket"
	dErrors "vcregistry/pkg/domain-errors"
	"vcregistry/pkg/platform/httputil"
	"vcregistry/pkg/requestcontext"
)

// Middleware applies one fixed budget per key and endpoint class.
type Middleware struct {
	store   bucket.Store
	limit   int
	window  time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Middleware.
type Option func(*Middleware)

func WithMetrics(m *metrics.Metrics) Option {
	return func(mw *Middleware) { mw.metrics = m }
}

// New creates rate limiting middleware. A non-positive limit disables it.
func New(store bucket.Store, limit int, window time.Duration, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RateLimit keys the budget on the authenticated caller. Unauthenticated
// requests fall back to the client IP. Store failures let the request through.
func (m *Middleware) RateLimit(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key, keyType := m.keyFor(r, class)

			result, err := m.store.Allow(ctx, key.String(), m.limit, m.window)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err,
					"key_type", keyType,
					"request_id", requestcontext.RequestID(ctx),
				)
				if m.metrics != nil {
					m.metrics.IncrementStoreErrors()
				}
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)

			if !result.Allowed {
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"class", class,
					"key_type", keyType,
					"ip_prefix", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
					"request_id", requestcontext.RequestID(ctx),
				)
				if m.metrics != nil {
					m.metrics.IncrementLimited(string(class), keyType)
				}
				writeRateLimitExceeded(w, result)
				return
			}

			if m.metrics != nil {
				m.metrics.IncrementAllowed(string(class), keyType)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) keyFor(r *http.Request, class models.EndpointClass) (models.RateLimitKey, string) {
	ctx := r.Context()
	if caller := requestcontext.Caller(ctx); !caller.IsNil() {
		return models.NewRateLimitKey(models.KeyPrefixCaller, caller.Hex(), class), string(models.KeyPrefixCaller)
	}
	return models.NewRateLimitKey(models.KeyPrefixIP, requestcontext.ClientIP(ctx), class), string(models.KeyPrefixIP)
}

// addRateLimitHeaders adds X-RateLimit-* headers to the response.
func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:            string(dErrors.CodeRateLimited),
		ErrorDescription: "too many requests, retry later",
		RetryAfter:       result.RetryAfter,
	})
}
