package onetime

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opscrm/opscrm/internal/auth"
	"github.com/opscrm/opscrm/internal/payroll/registry"
	"github.com/opscrm/opscrm/internal/platform/httpx"
	"github.com/opscrm/opscrm/internal/shared"
)

// Handler exposes one-time payments over HTTP.
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

// MountRoutes registers /one-time routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAny(auth.PayrollRoles...))
		r.Get("/one-time", h.list)
		r.Post("/one-time", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAny(auth.ApproveRoles...))
		r.Put("/one-time/{id}/approve", h.approve)
		r.Put("/one-time/{id}/reject", h.reject)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAny(auth.PayRoles...))
		r.Put("/one-time/{id}/pay", h.pay)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var (
		f   ListFilter
		err error
	)
	q := r.URL.Query()
	f.Status = Status(q.Get("status"))
	f.PaymentType = registry.PaymentType(q.Get("payment_type"))
	if f.WorkID, err = httpx.QueryInt64(r, "work_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if f.EmployeeID, err = httpx.QueryInt64(r, "employee_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if f.Limit, err = httpx.QueryInt(r, "limit", 50); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if f.Offset, err = httpx.QueryInt(r, "offset", 0); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	items, total, err := h.service.List(r.Context(), f, p)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "list one-time payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ListResponse{Items: items, Total: total})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	item, err := h.service.Create(r.Context(), req, r.Header.Get(shared.IdempotencyHeader), p)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "create one-time payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"item": item})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "approve one-time payment", h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "reject one-time payment", h.service.Reject)
}

type decideFunc func(ctx context.Context, id int64, comment string, actor auth.Principal) (*Payment, error)

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, msg string, fn decideFunc) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req DecisionRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	item, err := fn(r.Context(), id, req.DirectorComment, p)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, msg, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"item": item})
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	item, err := h.service.Pay(r.Context(), id, p)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "pay one-time payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"item": item})
}
