package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vtrack/internal/platform/metrics"
	"vtrack/internal/platform/middleware"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/platform/httputil"
)

// Routes is implemented by every domain handler.
type Routes interface {
	Register(r chi.Router)
}

// PublicRoutes mounts routes reachable without a bearer token.
type PublicRoutes interface {
	RegisterPublic(r chi.Router)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Config struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Tokens         middleware.JWTValidator
	Revocations    middleware.TokenRevocationChecker
	RequestTimeout time.Duration
	Health         map[string]HealthCheck
}

// NewRouter mounts the API under /api/v1. Public routes are registered
// before RequireAuth; everything else needs a valid, unrevoked token.
func NewRouter(cfg Config, public []PublicRoutes, protected []Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Latency(cfg.Metrics))
	}

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/api/health", healthHandler(cfg.Health))

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		r.Use(middleware.ContentTypeJSON)
		for _, p := range public {
			p.RegisterPublic(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(cfg.Tokens, cfg.Revocations, cfg.Logger))
			for _, h := range protected {
				h.Register(r)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusMethodNotAllowed, map[string]any{
			"success":           false,
			"error":             "method_not_allowed",
			"error_description": "method not allowed",
		})
	})
	return r
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Time   time.Time         `json:"time"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		res := healthStatus{Status: "ok", Checks: make(map[string]string, len(checks)), Time: time.Now().UTC()}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				res.Checks[name] = "down"
				res.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			res.Checks[name] = "up"
		}
		httputil.WriteJSON(w, status, res)
	}
}
