// Package httptransport assembles the registry's HTTP surface: the global
// middleware chain, public read routes and the authenticated write groups.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	attestationhandler "vcregistry/internal/attestation/handler"
	directoryhandler "vcregistry/internal/directory/handler"
	"vcregistry/internal/platform/health"
	ratelimit "vcregistry/internal/ratelimit/middleware"
	"vcregistry/internal/ratelimit/models"
	"vcregistry/pkg/platform/middleware/auth"
	"vcregistry/pkg/platform/middleware/request"
	"vcregistry/pkg/platform/middleware/requesttime"
)

// Deps is everything the router mounts. Metrics and RateLimit are optional.
type Deps struct {
	Directory *directoryhandler.Handler
	Registry  *attestationhandler.Handler
	Health    *health.Handler
	Auth      auth.JWTValidator
	RateLimit *ratelimit.Middleware
	Metrics   *request.Metrics
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	Logger         *slog.Logger
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// NewRouter wires all endpoints with middleware.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(request.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(d.Logger))
	if d.RequestTimeout > 0 {
		r.Use(request.Timeout(d.RequestTimeout))
	}
	if d.MaxBodyBytes > 0 {
		r.Use(request.BodyLimit(d.MaxBodyBytes))
	}
	r.Use(request.ContentTypeJSON)
	r.Use(request.LatencyMiddleware(d.Metrics, routePattern))

	if d.Health != nil {
		d.Health.Register(r)
	}
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	d.Directory.Register(r)
	d.Registry.Register(r)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(d.Auth, d.Logger))
		if d.RateLimit != nil {
			r.Use(d.RateLimit.RateLimit(models.ClassDirectory))
		}
		d.Directory.RegisterAdmin(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(d.Auth, d.Logger))
		if d.RateLimit != nil {
			r.Use(d.RateLimit.RateLimit(models.ClassRegistry))
		}
		d.Registry.RegisterVerifier(r)
	})

	return r
}

// routePattern is read after the handler ran, when chi has filled the
// route context.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
