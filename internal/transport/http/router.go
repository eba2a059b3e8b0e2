// Package httptransport assembles the public HTTP surface: middleware,
// certification and session routes, health and metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	certHandler "oddcert/internal/certification/handler"
	"oddcert/internal/platform/metrics"
	sessionHandler "oddcert/internal/session/handler"
	"oddcert/pkg/platform/httputil"
	"oddcert/pkg/platform/middleware/auth"
	"oddcert/pkg/platform/middleware/request"
	"oddcert/pkg/platform/middleware/requesttime"
)

const defaultRequestTimeout = 30 * time.Second

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the router mounts.
type Deps struct {
	Certification certHandler.Service
	Sessions      sessionHandler.Service
	AgentAuth     auth.AgentValidator
	Logger        *slog.Logger

	// Metrics and Gatherer are optional; without them /metrics is not mounted.
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// Health checks run on /readyz keyed by dependency name.
	Health map[string]HealthCheck

	RequestTimeout time.Duration
}

// NewRouter wires all public endpoints.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.Recovery(logger))
	r.Use(request.Logger(logger))
	r.Use(deps.Metrics.LatencyMiddleware)
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(deps.Health, logger))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	certs := certHandler.New(deps.Certification, logger)
	sessions := sessionHandler.New(deps.Sessions, logger)

	r.Group(func(r chi.Router) {
		r.Use(auth.Identity(logger))
		r.Use(auth.AllowAgent(deps.AgentAuth, logger))
		certs.Register(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAgent(deps.AgentAuth, logger))
		sessions.Register(r)
	})
	return r
}

func readiness(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := map[string]string{}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed",
					"request_id", request.GetRequestID(ctx),
					"dependency", name,
					"error", err,
				)
				status[name] = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httputil.WriteJSON(w, code, status)
	}
}
