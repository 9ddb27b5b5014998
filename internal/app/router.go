package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/opscrm/opscrm/internal/auth"
	"github.com/opscrm/opscrm/internal/observability"
	"github.com/opscrm/opscrm/internal/payroll/onetime"
	"github.com/opscrm/opscrm/internal/payroll/rates"
	"github.com/opscrm/opscrm/internal/payroll/registry"
	"github.com/opscrm/opscrm/internal/payroll/selfemployed"
	"github.com/opscrm/opscrm/internal/payroll/sheets"
	"github.com/opscrm/opscrm/internal/payroll/stats"
	"github.com/opscrm/opscrm/internal/platform/httpx"
	"github.com/opscrm/opscrm/jobs"
)

// Pinger checks a backing service for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config
	Auth   auth.Middleware

	SheetsHandler       *sheets.Handler
	OneTimeHandler      *onetime.Handler
	RegistryHandler     *registry.Handler
	RatesHandler        *rates.Handler
	SelfEmployedHandler *selfemployed.Handler
	StatsHandler        *stats.Handler
	JobHandler          *jobs.Handler

	Database Pinger
	Metrics  *observability.Metrics
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "not_found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Database != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Database.Ping(ctx); err != nil {
				params.Logger.Warn("healthz database ping", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/payroll", func(r chi.Router) {
		r.Use(params.Auth.Authenticate)
		if params.SheetsHandler != nil {
			params.SheetsHandler.MountRoutes(r)
		}
		if params.OneTimeHandler != nil {
			params.OneTimeHandler.MountRoutes(r)
		}
		if params.RegistryHandler != nil {
			params.RegistryHandler.MountRoutes(r)
		}
		if params.RatesHandler != nil {
			params.RatesHandler.MountRoutes(r)
		}
		if params.SelfEmployedHandler != nil {
			params.SelfEmployedHandler.MountRoutes(r)
		}
		if params.StatsHandler != nil {
			params.StatsHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
