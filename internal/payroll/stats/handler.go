package stats

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opscrm/opscrm/internal/auth"
	"github.com/opscrm/opscrm/internal/platform/httpx"
)

// Handler serves the payroll dashboard summary.
type Handler struct {
	logger  *slog.Logger
	service *Service
	auth    auth.Middleware
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service, mw auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, auth: mw}
}

// MountRoutes registers GET /stats.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.auth.RequireAny(auth.StatsRoles...)).Get("/stats", h.get)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	year, err := httpx.QueryInt(r, "year", 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	st, err := h.service.Get(r.Context(), year)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "payroll stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}
