package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/tally-crm/tally/internal/invoices"
	jobmetrics "github.com/tally-crm/tally/internal/jobs"
	"github.com/tally-crm/tally/internal/platform/cache"
	"github.com/tally-crm/tally/internal/recurring"
	"github.com/tally-crm/tally/internal/reminders"
	"github.com/tally-crm/tally/internal/shared"
)

// PassOutcome counts what one engine pass did.
type PassOutcome struct {
	Processed int
	Created   int
	Failed    int
}

// PassFunc runs one engine pass.
type PassFunc func(ctx context.Context) (PassOutcome, error)

// PassJob runs an engine pass from the scheduler with metrics, structured
// logs and, for daily passes, a per-day run marker.
type PassJob struct {
	Name    string
	Run     PassFunc
	Marker  *cache.RunMarker
	Clock   shared.Clock
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle executes the pass.
func (j *PassJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Run == nil {
		return errors.New("pass job: handler not configured")
	}
	var payload PassPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := time.Now()
	tracker := j.Metrics.Track(j.Name)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("job", j.Name),
		slog.String("run_id", uuid.NewString()),
	)

	day := j.now()
	claimed := false
	if j.Marker != nil && !payload.Force {
		ok, err := j.Marker.Claim(ctx, j.Name, day)
		switch {
		case err != nil:
			// the engines are idempotent per day on their own
			logger.Warn("run marker unavailable", slog.Any("error", err))
		case !ok:
			logger.Info("pass already ran today", slog.String("day", day.Format(time.DateOnly)))
			j.Metrics.AddItems(j.Name, jobmetrics.OutcomeSkipped, 1)
			return nil
		default:
			claimed = true
		}
	}

	out, err := j.Run(ctx)
	if err != nil {
		logger.Error("pass failed", slog.Any("error", err))
		if claimed {
			if rerr := j.Marker.Release(ctx, j.Name, day); rerr != nil {
				logger.Warn("release run marker", slog.Any("error", rerr))
			}
		}
		return err
	}

	j.Metrics.AddItems(j.Name, jobmetrics.OutcomeProcessed, out.Processed)
	j.Metrics.AddItems(j.Name, jobmetrics.OutcomeFailed, out.Failed)
	logger.Info("pass completed",
		slog.Int("processed", out.Processed),
		slog.Int("created", out.Created),
		slog.Int("failed", out.Failed),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *PassJob) now() time.Time {
	if j.Clock == nil {
		return time.Now().UTC()
	}
	return j.Clock.Now()
}

func (j *PassJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

// DueRemindersPass adapts the reminder engine.
func DueRemindersPass(svc *reminders.Service) PassFunc {
	return func(ctx context.Context) (PassOutcome, error) {
		res, err := svc.ProcessDueReminders(ctx)
		return PassOutcome{Processed: res.Processed, Created: res.Spawned, Failed: len(res.Failures)}, err
	}
}

// DueTasksPass adapts ProcessDueTasks.
func DueTasksPass(svc *recurring.Service) PassFunc {
	return func(ctx context.Context) (PassOutcome, error) {
		res, err := svc.ProcessDueTasks(ctx)
		return PassOutcome{Processed: res.Processed, Created: res.Created, Failed: len(res.Failures)}, err
	}
}

// UpcomingRemindersPass adapts CreateUpcomingReminders.
func UpcomingRemindersPass(svc *recurring.Service) PassFunc {
	return func(ctx context.Context) (PassOutcome, error) {
		res, err := svc.CreateUpcomingReminders(ctx)
		return PassOutcome{Processed: res.Processed, Created: res.Created, Failed: len(res.Failures)}, err
	}
}

// OverdueSweepPass adapts the invoice overdue sweep.
func OverdueSweepPass(svc *invoices.Service) PassFunc {
	return func(ctx context.Context) (PassOutcome, error) {
		res, err := svc.SweepOverdue(ctx)
		return PassOutcome{Processed: res.Count}, err
	}
}
