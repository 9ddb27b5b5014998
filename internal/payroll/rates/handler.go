package rates

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opscrm/opscrm/internal/auth"
	"github.com/opscrm/opscrm/internal/platform/httpx"
)

// Handler exposes the rate registry over HTTP.
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

// MountRoutes registers /rates routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAny(auth.PayrollRoles...))
		r.Get("/rates", h.list)
		r.Get("/rates/current", h.current)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAny(auth.PayRoles...))
		r.Post("/rates", h.create)
		r.Put("/rates/{id}", h.update)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	employeeID, err := httpx.QueryInt64(r, "employee_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.List(r.Context(), employeeID)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "list rates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rates": items})
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	employeeID, err := httpx.QueryInt64(r, "employee_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rate, err := h.service.Current(r.Context(), employeeID)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "current rate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rate": rate})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	rate, err := h.service.Create(r.Context(), req, principal.UserID)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "create rate", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"rate": rate})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	rate, err := h.service.Update(r.Context(), id, req, principal.UserID)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "update rate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rate": rate})
}
