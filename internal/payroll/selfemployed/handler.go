package selfemployed

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opscrm/opscrm/internal/auth"
	"github.com/opscrm/opscrm/internal/platform/httpx"
)

// Handler exposes self-employed profiles over HTTP.
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

// MountRoutes registers /self-employed routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAny(auth.PayrollRoles...))
		r.Get("/self-employed", h.list)
		r.Get("/self-employed/{id}/payments", h.payments)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAny(auth.PayRoles...))
		r.Post("/self-employed", h.create)
		r.Put("/self-employed/{id}", h.update)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var filter Filter
	if raw := r.URL.Query().Get("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid is_active", httpx.ErrValidation))
			return
		}
		filter.IsActive = &active
	}
	filter.Search = r.URL.Query().Get("search")
	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "list self-employed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	item, err := h.service.Create(r.Context(), req, principal.UserID)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "create self-employed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"item": item})
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
	item, err := h.service.Update(r.Context(), id, req, principal.UserID)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "update self-employed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"item": item})
}

func (h *Handler) payments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp, err := h.service.Payments(r.Context(), id)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "self-employed payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}
