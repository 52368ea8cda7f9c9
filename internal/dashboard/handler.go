package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/tally-crm/tally/internal/invoices"
	"github.com/tally-crm/tally/internal/platform/httpx"
	"github.com/tally-crm/tally/internal/recurring"
	"github.com/tally-crm/tally/internal/reminders"
	"github.com/tally-crm/tally/internal/shared"
)

const (
	requestTimeout = 2 * time.Second
	upcomingDays   = 7
)

// ReminderSource counts reminders by scope.
type ReminderSource interface {
	List(ctx context.Context, filter reminders.ListFilter) ([]reminders.Reminder, int, error)
}

// InvoiceSource provides receivable aging.
type InvoiceSource interface {
	Aging(ctx context.Context, asOf time.Time) (invoices.AgingBucket, error)
}

// ProjectSource counts open offers.
type ProjectSource interface {
	OpenOffers(ctx context.Context) (int, error)
}

// TaskSource counts recurring tasks.
type TaskSource interface {
	List(ctx context.Context, filter recurring.ListFilter) ([]recurring.Task, int, error)
}

// Summary is the dashboard payload.
type Summary struct {
	AsOf              time.Time            `json:"as_of"`
	OverdueReminders  int                  `json:"overdue_reminders"`
	UpcomingReminders int                  `json:"upcoming_reminders"`
	OpenOffers        int                  `json:"open_offers"`
	ActiveTasks       int                  `json:"active_recurring_tasks"`
	Receivables       invoices.AgingBucket `json:"receivables"`
}

// Handler serves the dashboard summary.
type Handler struct {
	logger    *slog.Logger
	reminders ReminderSource
	invoices  InvoiceSource
	projects  ProjectSource
	tasks     TaskSource
	clock     shared.Clock
}

// NewHandler wires the dashboard sources.
func NewHandler(logger *slog.Logger, rem ReminderSource, inv InvoiceSource, proj ProjectSource, tasks TaskSource, clock shared.Clock) *Handler {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Handler{logger: logger, reminders: rem, invoices: inv, projects: proj, tasks: tasks, clock: clock}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.summary)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	out, err := h.load(ctx)
	if err != nil {
		h.logger.Error("load dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) load(ctx context.Context) (Summary, error) {
	out := Summary{AsOf: h.clock.Now()}
	active := true

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, total, err := h.reminders.List(ctx, reminders.ListFilter{Scope: reminders.ScopeOverdue, Limit: 1})
		if err != nil {
			return err
		}
		out.OverdueReminders = total
		return nil
	})

	g.Go(func() error {
		_, total, err := h.reminders.List(ctx, reminders.ListFilter{Scope: reminders.ScopeUpcoming, Days: upcomingDays, Limit: 1})
		if err != nil {
			return err
		}
		out.UpcomingReminders = total
		return nil
	})

	g.Go(func() error {
		aging, err := h.invoices.Aging(ctx, out.AsOf)
		if err != nil {
			return err
		}
		out.Receivables = aging
		return nil
	})

	g.Go(func() error {
		n, err := h.projects.OpenOffers(ctx)
		if err != nil {
			return err
		}
		out.OpenOffers = n
		return nil
	})

	g.Go(func() error {
		_, total, err := h.tasks.List(ctx, recurring.ListFilter{Active: &active, Limit: 1})
		if err != nil {
			return err
		}
		out.ActiveTasks = total
		return nil
	})

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return out, nil
}
