package reminders

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tally-crm/tally/internal/platform/httpx"
	"github.com/tally-crm/tally/internal/shared"
)

// Handler exposes reminders over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Delete("/{id}", h.delete)

	// Actions
	r.Post("/{id}/complete", h.complete)
	r.Post("/{id}/snooze", h.snooze)
}

type snoozeRequest struct {
	Hours int `json:"hours"`
}

// list handles GET /reminders?scope=&days=&link_kind=&link_id=
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := shared.PageParams(q)
	filter := ListFilter{
		Scope:  Scope(q.Get("scope")),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	if v := q.Get("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			httpx.RespondError(w, shared.NewValidationError("days", "must be a positive integer"))
			return
		}
		filter.Days = days
	}
	if kind := q.Get("link_kind"); kind != "" {
		id, err := strconv.ParseInt(q.Get("link_id"), 10, 64)
		if err != nil || !LinkKind(kind).IsValid() {
			httpx.RespondError(w, shared.NewValidationError("link", "link_kind and link_id must name a client, project or invoice"))
			return
		}
		filter.Link = &Link{Kind: LinkKind(kind), ID: id}
	}
	if v := q.Get("system"); v != "" {
		sys, err := strconv.ParseBool(v)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("system", "must be a boolean"))
			return
		}
		filter.IsSystem = &sys
	}

	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list reminders failed", err)
		return
	}
	httpx.List(w, items, shared.NewPagination(page, perPage, total))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rem, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get reminder failed", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, rem)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rem, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, "create reminder failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rem)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rem, err := h.service.Complete(r.Context(), id)
	if err != nil {
		h.fail(w, "complete reminder failed", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, rem)
}

func (h *Handler) snooze(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req snoozeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rem, err := h.service.Snooze(r.Context(), id, req.Hours)
	if err != nil {
		h.fail(w, "snooze reminder failed", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, rem)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete reminder failed", err, slog.Int64("id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	h.logger.Warn(msg, append(attrs, slog.Any("error", err))...)
	httpx.RespondError(w, err)
}
