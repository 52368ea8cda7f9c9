package invoices

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally-crm/tally/internal/lifecycle"
	"github.com/tally-crm/tally/internal/shared"
)

func newTestRouter(repo *memoryInvoiceRepo, policy lifecycle.Policy) http.Handler {
	svc, _ := newTestService(repo, policy)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/invoices", h.MountRoutes)
	return r
}

func TestHandlerPayReturnsState(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	repo.seed(lifecycle.InvoiceSent, day(2024, time.May, 1), "80")
	router := newTestRouter(repo, lifecycle.PolicyStrict)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/invoices/1/pay", strings.NewReader(`{"payment_method":"card"}`)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		Status        string     `json:"status"`
		PaymentMethod string     `json:"payment_method"`
		State         StatusView `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "PAID", body.Status)
	assert.Equal(t, "card", body.PaymentMethod)
	assert.True(t, body.State.Final)
	assert.Empty(t, body.State.Next)
}

func TestHandlerIllegalTransitionIsConflict(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	repo.seed(lifecycle.InvoiceCancelled, day(2024, time.May, 1), "80")
	router := newTestRouter(repo, lifecycle.PolicyStrict)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/invoices/1/send", nil))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerListRejectsUnknownStatus(t *testing.T) {
	router := newTestRouter(newMemoryInvoiceRepo(), lifecycle.PolicyStrict)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/invoices?status=LOST", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

type memoryKeys map[string]bool

func (m memoryKeys) CheckAndInsert(ctx context.Context, key, module string) error {
	if m[module+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	m[module+"/"+key] = true
	return nil
}

func (m memoryKeys) Delete(ctx context.Context, key, module string) error {
	delete(m, module+"/"+key)
	return nil
}

func TestHandlerCreateHonoursIdempotencyKey(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	svc, _ := newTestService(repo, lifecycle.PolicyStrict)
	keys := memoryKeys{}
	r := chi.NewRouter()
	r.Route("/invoices", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).WithIdempotency(keys).MountRoutes)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/invoices/", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "order-77")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	// a rejected create releases the key
	rr := post(`{"client_id":0}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	valid := `{"client_id":3,"subtotal":"100","tax_amount":"19","due_at":"2024-07-01T00:00:00Z"}`
	rr = post(valid)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = post(valid)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Len(t, repo.invoices, 1)
}
