package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/tally-crm/tally/internal/recurrence"
	"github.com/tally-crm/tally/internal/reminders"
	"github.com/tally-crm/tally/internal/shared"
)

// ServiceConfig collects the engine's collaborators.
type ServiceConfig struct {
	// Links checks that a task's client exists. Optional.
	Links  reminders.LinkResolver
	Clock  shared.Clock
	Logger *slog.Logger
}

// Service is the recurring task engine.
type Service struct {
	repo      Repository
	links     reminders.LinkResolver
	clock     shared.Clock
	logger    *slog.Logger
	validator *shared.Validator
}

// NewService builds the engine.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	s := &Service{
		repo:      repo,
		links:     cfg.Links,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		validator: shared.NewValidator(),
	}
	if s.clock == nil {
		s.clock = shared.SystemClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// ProcessDueTasks creates the due reminder for every active task whose
// next_due_at has arrived, logs the occurrence and advances the task by one
// step. A task is processed at most once per calendar day and each
// occurrence gets at most one due reminder.
func (s *Service) ProcessDueTasks(ctx context.Context) (Result, error) {
	now := s.clock.Now()
	today := shared.DateOf(now)

	tasks, err := s.repo.ListDue(ctx, today)
	if err != nil {
		return Result{}, fmt.Errorf("list due tasks: %w", err)
	}

	var res Result
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		processed, created, err := s.processTask(ctx, task.ID, today, now)
		if err != nil {
			s.logger.Error("process recurring task", slog.Int64("task_id", task.ID), slog.Any("error", err))
			res.Failures = append(res.Failures, shared.BatchFailure{ID: task.ID, Err: err})
			continue
		}
		if processed {
			res.Processed++
		}
		if created {
			res.Created++
		}
	}
	return res, nil
}

func (s *Service) processTask(ctx context.Context, id int64, today, now time.Time) (processed, created bool, err error) {
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		task, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !task.IsDue(today) {
			return nil
		}
		occurrence := task.NextDueAt

		switch _, err := tx.CreateReminder(ctx, task.DueReminder(now)); {
		case err == nil:
			created = true
		case errors.Is(err, reminders.ErrDuplicateOccurrence):
			s.logger.Info("reminder already exists for occurrence",
				slog.Int64("task_id", task.ID),
				slog.String("occurrence", occurrence.Format(time.DateOnly)),
			)
		default:
			return fmt.Errorf("create reminder: %w", err)
		}

		if err := tx.AppendLog(ctx, Log{
			TaskID:    task.ID,
			DueDate:   occurrence,
			Action:    ActionReminderCreated,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append log: %w", err)
		}

		if err := task.Advance(); err != nil {
			return err
		}
		task.LastProcessedOn = &today
		task.UpdatedAt = now
		if !task.Active {
			s.logger.Info("recurring task contract ended", slog.Int64("task_id", task.ID))
		}
		if err := tx.Update(ctx, *task); err != nil {
			return fmt.Errorf("advance task: %w", err)
		}
		processed = true
		return nil
	})
	return processed, created, err
}

// CreateUpcomingReminders creates the advance notice for every active task
// whose notice window for the next occurrence has opened.
func (s *Service) CreateUpcomingReminders(ctx context.Context) (Result, error) {
	now := s.clock.Now()
	today := shared.DateOf(now)

	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list active tasks: %w", err)
	}
	candidates := lo.Filter(active, func(t Task, _ int) bool {
		return t.NeedsAdvanceNotice(today)
	})

	var res Result
	for _, task := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		created, err := s.remindTask(ctx, task.ID, today, now)
		if err != nil {
			s.logger.Error("create advance reminder", slog.Int64("task_id", task.ID), slog.Any("error", err))
			res.Failures = append(res.Failures, shared.BatchFailure{ID: task.ID, Err: err})
			continue
		}
		res.Processed++
		if created {
			res.Created++
		}
	}
	return res, nil
}

func (s *Service) remindTask(ctx context.Context, id int64, today, now time.Time) (created bool, err error) {
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		task, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !task.NeedsAdvanceNotice(today) {
			return nil
		}
		switch _, err := tx.CreateReminder(ctx, task.AdvanceReminder(now)); {
		case err == nil:
			created = true
		case errors.Is(err, reminders.ErrDuplicateOccurrence):
		default:
			return fmt.Errorf("create reminder: %w", err)
		}
		due := task.NextDueAt
		task.RemindedFor = &due
		task.UpdatedAt = now
		return tx.Update(ctx, *task)
	})
	return created, err
}

// SkipOccurrence logs the current occurrence as skipped and advances the task
// without creating a reminder.
func (s *Service) SkipOccurrence(ctx context.Context, id int64, reason string) (*Task, error) {
	return s.closeOccurrence(ctx, id, ActionSkipped, reason)
}

// CompleteOccurrence logs the current occurrence as handled by hand and
// advances the task.
func (s *Service) CompleteOccurrence(ctx context.Context, id int64, notes string) (*Task, error) {
	return s.closeOccurrence(ctx, id, ActionManuallyCompleted, notes)
}

func (s *Service) closeOccurrence(ctx context.Context, id int64, action LogAction, notes string) (*Task, error) {
	notes = strings.TrimSpace(notes)
	if len(notes) > 1000 {
		return nil, shared.NewValidationError("notes", "must be at most 1000")
	}
	now := s.clock.Now()
	var out Task
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		task, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.AppendLog(ctx, Log{
			TaskID:    task.ID,
			DueDate:   task.NextDueAt,
			Action:    action,
			Notes:     notes,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append log: %w", err)
		}
		if err := task.Advance(); err != nil {
			return err
		}
		task.UpdatedAt = now
		if err := tx.Update(ctx, *task); err != nil {
			return err
		}
		out = *task
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s occurrence: %w", action, err)
	}
	return &out, nil
}

// Pause deactivates the task. Paused tasks are ignored by both passes.
func (s *Service) Pause(ctx context.Context, id int64) (*Task, error) {
	return s.setActive(ctx, id, false)
}

// Resume reactivates the task.
func (s *Service) Resume(ctx context.Context, id int64) (*Task, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) setActive(ctx context.Context, id int64, active bool) (*Task, error) {
	now := s.clock.Now()
	var out Task
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		task, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out = *task
		if task.Active == active {
			return nil
		}
		task.Active = active
		task.UpdatedAt = now
		if err := tx.Update(ctx, *task); err != nil {
			return err
		}
		out = *task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Create stores a new active task.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Task, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	today := shared.DateOf(now)
	next := shared.DateOf(input.NextDueAt)
	if next.Before(today) {
		return nil, shared.NewValidationError("next_due_at", "must not be in the past")
	}
	if input.Amount != nil && input.Amount.IsNegative() {
		return nil, shared.NewValidationError("amount", "must not be negative")
	}
	start, end := datePtr(input.ContractStart), datePtr(input.ContractEnd)
	if start != nil && end != nil && end.Before(*start) {
		return nil, shared.NewValidationError("contract_end", "must not be before contract_start")
	}
	if input.ClientID != nil && s.links != nil {
		if _, err := s.links.Resolve(ctx, reminders.Link{Kind: reminders.LinkClient, ID: *input.ClientID}); err != nil {
			return nil, err
		}
	}

	task := Task{
		Title:         strings.TrimSpace(input.Title),
		Description:   input.Description,
		ClientID:      input.ClientID,
		Frequency:     recurrence.Kind(input.Frequency),
		NextDueAt:     next,
		Active:        true,
		ContractStart: start,
		ContractEnd:   end,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if input.Amount != nil {
		task.Amount.Decimal, task.Amount.Valid = *input.Amount, true
	}
	id, err := s.repo.Create(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("create recurring task: %w", err)
	}
	task.ID = id
	return &task, nil
}

// Get returns a task by id.
func (s *Service) Get(ctx context.Context, id int64) (*Task, error) {
	return s.repo.Get(ctx, id)
}

// List returns tasks matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Task, int, error) {
	return s.repo.List(ctx, filter)
}

// Logs returns the occurrence history of a task, newest first.
func (s *Service) Logs(ctx context.Context, id int64, limit int) ([]Log, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Logs(ctx, id, limit)
}

func datePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return lo.ToPtr(shared.DateOf(*t))
}
