package sheets

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opscrm/opscrm/internal/auth"
	"github.com/opscrm/opscrm/internal/platform/httpx"
	"github.com/opscrm/opscrm/internal/shared"
)

// Handler exposes sheets and items over HTTP.
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

// MountRoutes registers /sheets and /items routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAny(auth.PayrollRoles...))
		r.Get("/sheets", h.list)
		r.Get("/sheets/{id}", h.get)
		r.Put("/sheets/{id}", h.update)
		r.Put("/sheets/{id}/submit", h.submit)
		r.Delete("/sheets/{id}", h.delete)

		r.Get("/items", h.listItems)
		r.Post("/items", h.addItem)
		r.Post("/items/auto-fill", h.autoFill)
		r.Post("/items/recalc", h.recalc)
		r.Put("/items/{id}", h.updateItem)
		r.Delete("/items/{id}", h.deleteItem)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAny(auth.SheetCreators...))
		r.Post("/sheets", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAny(auth.ApproveRoles...))
		r.Put("/sheets/{id}/approve", h.approve)
		r.Put("/sheets/{id}/rework", h.rework)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAny(auth.PayRoles...))
		r.Put("/sheets/{id}/pay", h.pay)
	})
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	var f ListFilter
	var err error
	if f.WorkID, err = httpx.QueryInt64(r, "work_id"); err != nil {
		return f, err
	}
	q := r.URL.Query()
	f.Status = Status(q.Get("status"))
	if raw := q.Get("period_from"); raw != "" {
		d, err := shared.ParseDate(raw)
		if err != nil {
			return f, fmt.Errorf("%w: period_from: %v", httpx.ErrValidation, err)
		}
		f.PeriodFrom = &d
	}
	if raw := q.Get("period_to"); raw != "" {
		d, err := shared.ParseDate(raw)
		if err != nil {
			return f, fmt.Errorf("%w: period_to: %v", httpx.ErrValidation, err)
		}
		f.PeriodTo = &d
	}
	if f.Limit, err = httpx.QueryInt(r, "limit", shared.DefaultLimit); err != nil {
		return f, err
	}
	if f.Offset, err = httpx.QueryInt(r, "offset", 0); err != nil {
		return f, err
	}
	f.Scope = ScopeFor(principal(r))
	return f, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sheets, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "list sheets", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ListResponse{Sheets: sheets, Total: total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id, ScopeFor(principal(r)))
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "get sheet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sheet, err := h.service.Create(r.Context(), req, principal(r))
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "create sheet", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"sheet": sheet})
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
	sheet, err := h.service.Update(r.Context(), id, req, principal(r))
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "update sheet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sheet": sheet})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "submit sheet", func(id int64) (*Sheet, error) {
		return h.service.Submit(r.Context(), id, principal(r))
	})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve sheet", func(id int64) (*Sheet, error) {
		return h.service.Approve(r.Context(), id, principal(r))
	})
}

func (h *Handler) rework(w http.ResponseWriter, r *http.Request) {
	var req ReworkRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.transition(w, r, "rework sheet", func(id int64) (*Sheet, error) {
		return h.service.Rework(r.Context(), id, req.DirectorComment, principal(r))
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, msg string, fn func(int64) (*Sheet, error)) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sheet, err := fn(id)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, msg, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sheet": sheet})
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Pay(r.Context(), id, principal(r))
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "pay sheet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, principal(r)); err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "delete sheet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	sheetID, err := httpx.QueryInt64(r, "sheet_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.Items(r.Context(), sheetID, ScopeFor(principal(r)))
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "list items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.AddItem(r.Context(), req, principal(r))
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "add item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"item": item})
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ItemUpdateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.UpdateItem(r.Context(), id, req, principal(r))
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "update item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"item": item})
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteItem(r.Context(), id, principal(r)); err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "delete item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) autoFill(w http.ResponseWriter, r *http.Request) {
	var req SheetRef
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.AutoFill(r.Context(), req.SheetID, principal(r))
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "auto-fill sheet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) recalc(w http.ResponseWriter, r *http.Request) {
	var req SheetRef
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Recalc(r.Context(), req.SheetID, principal(r))
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "recalc sheet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
