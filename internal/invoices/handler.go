package invoices

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tally-crm/tally/internal/lifecycle"
	"github.com/tally-crm/tally/internal/platform/httpx"
	"github.com/tally-crm/tally/internal/shared"
)

// Handler manages invoice HTTP endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	keys    KeyStore
}

// KeyStore claims Idempotency-Key values. Satisfied by *shared.IdempotencyStore.
type KeyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

const createKeyModule = "invoices.create"

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// WithIdempotency makes POST / honour the Idempotency-Key header.
func (h *Handler) WithIdempotency(keys KeyStore) *Handler {
	h.keys = keys
	return h
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/aging", h.aging)
	r.Get("/{id}", h.show)

	// Status actions
	r.Post("/{id}/send", h.send)
	r.Post("/{id}/pay", h.pay)
	r.Post("/{id}/cancel", h.cancel)
}

type invoiceResponse struct {
	*Invoice
	State StatusView `json:"state"`
}

func respond(w http.ResponseWriter, status int, inv *Invoice) {
	httpx.JSON(w, status, invoiceResponse{Invoice: inv, State: inv.View()})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := shared.PageParams(q)
	filter := ListFilter{Limit: perPage, Offset: (page - 1) * perPage}
	if s := q.Get("status"); s != "" {
		status := lifecycle.InvoiceStatus(s)
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
		h.fail(w, "list invoices failed", err)
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
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get invoice failed", err, slog.Int64("id", id))
		return
	}
	respond(w, http.StatusOK, inv)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.keys != nil {
		if err := h.keys.CheckAndInsert(r.Context(), key, createKeyModule); err != nil {
			h.fail(w, "claim idempotency key failed", err, slog.String("key", key))
			return
		}
	}
	inv, err := h.service.Create(r.Context(), input)
	if err != nil {
		if key != "" && h.keys != nil {
			if derr := h.keys.Delete(r.Context(), key, createKeyModule); derr != nil {
				h.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		h.fail(w, "create invoice failed", err)
		return
	}
	respond(w, http.StatusCreated, inv)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	var asOf time.Time
	if v := r.URL.Query().Get("as_of"); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("as_of", "must be a date (YYYY-MM-DD)"))
			return
		}
		asOf = parsed
	}
	bucket, err := h.service.Aging(r.Context(), asOf)
	if err != nil {
		h.fail(w, "invoice aging failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"buckets": bucket, "total": bucket.Total()})
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "send", h.service.MarkSent)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "cancel", h.service.Cancel)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	var input PaymentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.act(w, r, "pay", func(ctx context.Context, id int64) (*Invoice, error) {
		return h.service.MarkPaid(ctx, id, input)
	})
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, int64) (*Invoice, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := fn(r.Context(), id)
	if err != nil {
		h.fail(w, "invoice "+action+" failed", err, slog.Int64("id", id))
		return
	}
	respond(w, http.StatusOK, inv)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	h.logger.Warn(msg, append(attrs, slog.Any("error", err))...)
	httpx.RespondError(w, err)
}
