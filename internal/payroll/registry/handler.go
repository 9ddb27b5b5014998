package registry

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opscrm/opscrm/internal/auth"
	"github.com/opscrm/opscrm/internal/platform/httpx"
	"github.com/opscrm/opscrm/internal/shared"
)

// Handler exposes the payment registry over HTTP.
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

// MountRoutes registers /payments routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAny(auth.PayrollRoles...))
		r.Get("/payments", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAny(auth.PayRoles...))
		r.Put("/payments/{id}/status", h.updateStatus)
		r.Get("/payments/export", h.export)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "list payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ListResponse{Payments: entries, Total: total})
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	var (
		f   ListFilter
		err error
	)
	q := r.URL.Query()
	if f.SheetID, err = httpx.QueryInt64(r, "sheet_id"); err != nil {
		return f, err
	}
	if f.EmployeeID, err = httpx.QueryInt64(r, "employee_id"); err != nil {
		return f, err
	}
	if f.Limit, err = httpx.QueryInt(r, "limit", shared.DefaultLimit); err != nil {
		return f, err
	}
	if f.Offset, err = httpx.QueryInt(r, "offset", 0); err != nil {
		return f, err
	}
	if s := q.Get("status"); s != "" {
		f.Status = Status(s)
		if !f.Status.Valid() {
			return f, ErrInvalidStatus
		}
	}
	f.PaymentMethod = Method(q.Get("payment_method"))
	for name, dst := range map[string]**time.Time{"date_from": &f.DateFrom, "date_to": &f.DateTo} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		d, err := shared.ParseDate(raw)
		if err != nil {
			return f, fmt.Errorf("%w: %s: %v", httpx.ErrValidation, name, err)
		}
		*dst = &d
	}
	return f, nil
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req StatusRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	entry, err := h.service.UpdateStatus(r.Context(), id, req, principal.UserID)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "update payment status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payment": entry})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	sheetID, err := httpx.QueryInt64(r, "sheet_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	f, filename, err := h.service.Export(r.Context(), sheetID)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "export payments", err)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			h.logger.Warn("close workbook", slog.Any("error", err))
		}
	}()
	w.Header().Set("Content-Type", XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := f.Write(w); err != nil {
		h.logger.Error("write workbook", slog.Any("error", err))
	}
}
