package projects

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tally-crm/tally/internal/lifecycle"
	"github.com/tally-crm/tally/internal/platform/httpx"
	"github.com/tally-crm/tally/internal/shared"
)

// Handler manages project HTTP endpoints.
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
	r.Post("/{id}/{action}", h.act)
}

type projectResponse struct {
	*Project
	Label   string   `json:"status_label"`
	Actions []Action `json:"actions"`
}

func respond(w http.ResponseWriter, status int, p *Project) {
	actions := p.Actions()
	if actions == nil {
		actions = []Action{}
	}
	httpx.JSON(w, status, projectResponse{Project: p, Label: p.Status.Label(), Actions: actions})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := shared.PageParams(q)
	filter := ListFilter{Limit: perPage, Offset: (page - 1) * perPage}
	if s := q.Get("status"); s != "" {
		status := lifecycle.ProjectStatus(s)
		filter.Status = &status
	}
	if v := q.Get("client_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("client_id", "must be an integer"))
			return
		}
		filter.ClientID = &id
	}
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list projects failed", err)
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
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get project failed", err, slog.Int64("id", id))
		return
	}
	respond(w, http.StatusOK, p)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, "create project failed", err)
		return
	}
	respond(w, http.StatusCreated, p)
}

// act handles POST /projects/{id}/{action}
func (h *Handler) act(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	action := Action(chi.URLParam(r, "action"))
	p, err := h.service.Apply(r.Context(), id, action)
	if err != nil {
		h.fail(w, "project action failed", err, slog.Int64("id", id), slog.String("action", string(action)))
		return
	}
	respond(w, http.StatusOK, p)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	h.logger.Warn(msg, append(attrs, slog.Any("error", err))...)
	httpx.RespondError(w, err)
}
