package recurring

import (
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

	"github.com/tally-crm/tally/internal/recurrence"
)

func newTestRouter(repo *memoryRepo, now time.Time) http.Handler {
	svc, _ := newTestService(repo, now)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/recurring-tasks", h.MountRoutes)
	return r
}

func TestHandlerSkipWithReason(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(Task{Title: "Newsletter", Frequency: recurrence.Weekly, NextDueAt: date(2024, time.July, 5), Active: true})
	router := newTestRouter(repo, at(date(2024, time.July, 1), 9))

	req := httptest.NewRequest(http.MethodPost, "/recurring-tasks/1/skip", strings.NewReader(`{"notes":"vacation"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var task Task
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &task))
	assert.Equal(t, date(2024, time.July, 12), task.NextDueAt)
	require.Len(t, repo.logs, 1)
	assert.Equal(t, "vacation", repo.logs[0].Notes)
}

func TestHandlerPauseUnknownTask(t *testing.T) {
	router := newTestRouter(newMemoryRepo(), at(date(2024, time.July, 1), 9))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/recurring-tasks/7/pause", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerCreateRejectsPastDueDate(t *testing.T) {
	router := newTestRouter(newMemoryRepo(), at(date(2024, time.July, 1), 9))

	body := `{"title":"Hosting","frequency":"MONTHLY","next_due_at":"2024-06-01T00:00:00Z"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/recurring-tasks/", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "next_due_at")
}
