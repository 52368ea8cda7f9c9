package recurring

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tally-crm/tally/internal/platform/httpx"
	"github.com/tally-crm/tally/internal/shared"
)

// Handler exposes recurring tasks over JSON.
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
	r.Get("/{id}/logs", h.logs)

	r.Post("/{id}/skip", h.skip)
	r.Post("/{id}/complete", h.complete)
	r.Post("/{id}/pause", h.pause)
	r.Post("/{id}/resume", h.resume)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := shared.PageParams(q)
	filter := ListFilter{Limit: perPage, Offset: (page - 1) * perPage}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("active", "must be a boolean"))
			return
		}
		filter.Active = &active
	}
	if v := q.Get("client_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("client_id", "must be an integer"))
			return
		}
		filter.ClientID = &id
	}
	tasks, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list recurring tasks failed", err)
		return
	}
	httpx.List(w, tasks, shared.NewPagination(page, perPage, total))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get recurring task failed", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.service.Logs(r.Context(), id, limit)
	if err != nil {
		h.fail(w, "list recurring task logs failed", err, slog.Int64("id", id))
		return
	}
	if logs == nil {
		logs = []Log{}
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	task, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, "create recurring task failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, task)
}

func (h *Handler) skip(w http.ResponseWriter, r *http.Request) {
	h.occurrence(w, r, h.service.SkipOccurrence)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.occurrence(w, r, h.service.CompleteOccurrence)
}

func (h *Handler) occurrence(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id int64, notes string) (*Task, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req notesRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	task, err := action(r.Context(), id, req.Notes)
	if err != nil {
		h.fail(w, "close occurrence failed", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Pause)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Resume)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id int64) (*Task, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	task, err := action(r.Context(), id)
	if err != nil {
		h.fail(w, "toggle recurring task failed", err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	h.logger.Warn(msg, append(attrs, slog.Any("error", err))...)
	httpx.RespondError(w, err)
}
