package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tally-crm/tally/internal/recurrence"
	"github.com/tally-crm/tally/internal/shared"
)

const (
	defaultMaxSnoozeHours = 720
	defaultBatchLimit     = 500
)

// ServiceConfig collects the collaborators of the reminder engine.
type ServiceConfig struct {
	Notifier       Notifier
	Links          LinkResolver
	Clock          shared.Clock
	Logger         *slog.Logger
	MaxSnoozeHours int
	BatchLimit     int
}

// Service is the reminder engine.
type Service struct {
	repo      Repository
	notifier  Notifier
	links     LinkResolver
	clock     shared.Clock
	logger    *slog.Logger
	validator *shared.Validator
	maxSnooze int
	batch     int
}

// NewService builds the engine.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	s := &Service{
		repo:      repo,
		notifier:  cfg.Notifier,
		links:     cfg.Links,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		validator: shared.NewValidator(),
		maxSnooze: cfg.MaxSnoozeHours,
		batch:     cfg.BatchLimit,
	}
	if s.clock == nil {
		s.clock = shared.SystemClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.logger}
	}
	if s.maxSnooze <= 0 {
		s.maxSnooze = defaultMaxSnoozeHours
	}
	if s.batch <= 0 {
		s.batch = defaultBatchLimit
	}
	return s
}

// ProcessDueReminders dispatches every pending reminder due at or before now.
// Recurring reminders are completed and replaced by their next occurrence;
// one-off reminders stay pending after the notification. A failure on one
// reminder is recorded and the pass continues.
func (s *Service) ProcessDueReminders(ctx context.Context) (BatchResult, error) {
	now := s.clock.Now()
	due, err := s.repo.ListDue(ctx, now, s.batch)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list due reminders: %w", err)
	}

	var res BatchResult
	for _, rem := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		spawned, notified, err := s.processOne(ctx, rem, now)
		if err != nil {
			s.logger.Error("process reminder", slog.Int64("reminder_id", rem.ID), slog.Any("error", err))
			res.Failures = append(res.Failures, shared.BatchFailure{ID: rem.ID, Err: err})
			continue
		}
		res.Processed++
		if notified {
			res.Notified++
		}
		if spawned {
			res.Spawned++
		}
	}
	return res, nil
}

// processOne re-reads the reminder under lock and dispatches it only when it
// is still pending and due; a reminder completed or snoozed since ListDue is
// left alone.
func (s *Service) processOne(ctx context.Context, rem Reminder, now time.Time) (spawned, notified bool, err error) {
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.GetForUpdate(ctx, rem.ID)
		if err != nil {
			return err
		}
		if cur.CompletedAt != nil || cur.NotifiedAt != nil || cur.DueAt.After(now) {
			return nil
		}
		if nerr := s.notifier.Notify(ctx, *cur); nerr != nil {
			s.logger.Warn("reminder notification failed",
				slog.Int64("reminder_id", cur.ID),
				slog.Any("error", nerr),
			)
		} else {
			notified = true
		}
		if err := tx.MarkNotified(ctx, cur.ID, now); err != nil {
			return fmt.Errorf("mark notified: %w", err)
		}
		if !cur.IsRecurring() {
			return nil
		}
		if err := tx.MarkCompleted(ctx, cur.ID, now); err != nil {
			return fmt.Errorf("complete: %w", err)
		}
		next, err := cur.Successor(now)
		if err != nil {
			return err
		}
		if _, err := tx.Insert(ctx, next); err != nil {
			return fmt.Errorf("insert successor: %w", err)
		}
		spawned = true
		return nil
	})
	return spawned, notified, err
}

// Create stores a user reminder.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Reminder, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, err
	}
	if input.Link != nil {
		if !input.Link.Kind.IsValid() || input.Link.ID <= 0 {
			return nil, shared.NewValidationError("link", "must reference a client, project or invoice")
		}
		if s.links != nil {
			if _, err := s.links.Resolve(ctx, *input.Link); err != nil {
				return nil, err
			}
		}
	}
	now := s.clock.Now()
	rem := Reminder{
		Title:       input.Title,
		Description: input.Description,
		DueAt:       input.DueAt,
		Priority:    input.Priority,
		Link:        input.Link,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if rem.Priority == "" {
		rem.Priority = PriorityNormal
	}
	if input.Recurrence != "" {
		k := recurrence.Kind(input.Recurrence)
		rem.Recurrence = &k
	}
	if actor := shared.ActorFromContext(ctx); !actor.IsSystem() {
		rem.CreatedBy = &actor.UserID
	}
	id, err := s.repo.Create(ctx, rem)
	if err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	rem.ID = id
	return &rem, nil
}

// Get returns a reminder by id.
func (s *Service) Get(ctx context.Context, id int64) (*Reminder, error) {
	return s.repo.Get(ctx, id)
}

// List applies one of the query scopes at the engine's clock.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Reminder, int, error) {
	if !filter.Scope.IsValid() {
		return nil, 0, shared.NewValidationError("scope", "must be one of pending, completed, overdue, upcoming")
	}
	return s.repo.List(ctx, filter, s.clock.Now())
}

// Pending lists reminders that are not completed.
func (s *Service) Pending(ctx context.Context) ([]Reminder, error) {
	out, _, err := s.List(ctx, ListFilter{Scope: ScopePending})
	return out, err
}

// Completed lists completed reminders.
func (s *Service) Completed(ctx context.Context) ([]Reminder, error) {
	out, _, err := s.List(ctx, ListFilter{Scope: ScopeCompleted})
	return out, err
}

// Overdue lists pending reminders due before now.
func (s *Service) Overdue(ctx context.Context) ([]Reminder, error) {
	out, _, err := s.List(ctx, ListFilter{Scope: ScopeOverdue})
	return out, err
}

// Upcoming lists pending reminders due within the next days.
func (s *Service) Upcoming(ctx context.Context, days int) ([]Reminder, error) {
	out, _, err := s.List(ctx, ListFilter{Scope: ScopeUpcoming, Days: days})
	return out, err
}

// Complete marks a reminder done. Completing a recurring reminder creates
// its next occurrence. Completing an already completed reminder is a no-op.
func (s *Service) Complete(ctx context.Context, id int64) (*Reminder, error) {
	now := s.clock.Now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cur.CompletedAt != nil {
			return nil
		}
		if err := tx.MarkCompleted(ctx, id, now); err != nil {
			return err
		}
		if !cur.IsRecurring() {
			return nil
		}
		next, err := cur.Successor(now)
		if err != nil {
			return err
		}
		_, err = tx.Insert(ctx, next)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("complete reminder: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Snooze postpones a reminder to now + hours. completed_at is untouched; the
// reminder becomes eligible for a fresh notification.
func (s *Service) Snooze(ctx context.Context, id int64, hours int) (*Reminder, error) {
	if hours < 1 || hours > s.maxSnooze {
		return nil, shared.NewValidationError("hours", fmt.Sprintf("must be between 1 and %d", s.maxSnooze))
	}
	now := s.clock.Now()
	due := now.Add(time.Duration(hours) * time.Hour)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, id); err != nil {
			return err
		}
		return tx.Reschedule(ctx, id, due, now)
	})
	if err != nil {
		return nil, fmt.Errorf("snooze reminder: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a user reminder. System reminders stay for the task history.
func (s *Service) Delete(ctx context.Context, id int64) error {
	rem, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if rem.IsSystem {
		return fmt.Errorf("%w: system reminders cannot be deleted", shared.ErrValidation)
	}
	return s.repo.Delete(ctx, id)
}
