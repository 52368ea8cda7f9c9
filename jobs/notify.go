package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/tally-crm/tally/internal/reminders"
	"github.com/tally-crm/tally/internal/shared"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func reminderNotifyOptions(rem reminders.Reminder) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(QueueMail),
		asynq.MaxRetry(5),
		asynq.TaskID(fmt.Sprintf("reminder:%d:%s", rem.ID, rem.DueAt.UTC().Format("20060102T1504"))),
	}
}

// ReminderNotifier hands due reminders to the queue. It implements
// reminders.Notifier for the dispatch engine.
type ReminderNotifier struct {
	enqueuer Enqueuer
}

// NewReminderNotifier wraps an enqueuer.
func NewReminderNotifier(enqueuer Enqueuer) *ReminderNotifier {
	return &ReminderNotifier{enqueuer: enqueuer}
}

// Notify enqueues the notification task. A task already queued for the same
// reminder and due time counts as delivered.
func (n *ReminderNotifier) Notify(ctx context.Context, rem reminders.Reminder) error {
	task, err := NewReminderNotifyTask(rem)
	if err != nil {
		return err
	}
	if _, err := n.enqueuer.EnqueueContext(ctx, task, reminderNotifyOptions(rem)...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue reminder %d: %w", rem.ID, err)
	}
	return nil
}

var _ reminders.Notifier = (*ReminderNotifier)(nil)

// ReminderNotifyJob renders a reminder into an email for the account owner.
type ReminderNotifyJob struct {
	Links     reminders.LinkResolver
	Enqueuer  Enqueuer
	Recipient string
	Logger    *slog.Logger
}

// Handle processes reminder:notify tasks.
func (j *ReminderNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReminderNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	logger := j.logger().With(slog.Int64("reminder_id", payload.ReminderID))
	if j.Recipient == "" {
		logger.Info("no notification recipient configured")
		return nil
	}

	var label string
	if payload.Link != nil && j.Links != nil {
		resolved, err := j.Links.Resolve(ctx, *payload.Link)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			logger.Warn("reminder link vanished", slog.String("kind", string(payload.Link.Kind)), slog.Int64("id", payload.Link.ID))
		case err != nil:
			return fmt.Errorf("resolve reminder link: %w", err)
		default:
			label = resolved
		}
	}

	task, err := NewSendEmailTask(SendEmailPayload{
		To:      j.Recipient,
		Subject: reminderSubject(payload),
		Body:    reminderBody(payload, label),
	})
	if err != nil {
		return err
	}
	if _, err := j.Enqueuer.EnqueueContext(ctx, task, asynq.Queue(QueueMail), asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue reminder mail: %w", err)
	}
	logger.Debug("reminder mail queued")
	return nil
}

func (j *ReminderNotifyJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

func reminderSubject(p ReminderNotifyPayload) string {
	if p.Priority == string(reminders.PriorityHigh) {
		return "[Reminder!] " + p.Title
	}
	return "[Reminder] " + p.Title
}

func reminderBody(p ReminderNotifyPayload, label string) string {
	var b strings.Builder
	b.WriteString(p.Title)
	b.WriteString("\n\nDue: ")
	b.WriteString(p.DueAt.UTC().Format("Mon, 02 Jan 2006 15:04 MST"))
	if label != "" {
		fmt.Fprintf(&b, "\nRelated %s: %s", p.Link.Kind, label)
	}
	if p.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(p.Description)
	}
	return b.String()
}
