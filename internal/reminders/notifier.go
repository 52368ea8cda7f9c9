package reminders

import (
	"context"
	"log/slog"
)

// Notifier dispatches a due notification for a reminder. Implementations
// must return quickly; delivery happens elsewhere.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, r Reminder) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, r Reminder) error {
	return f(ctx, r)
}

// LogNotifier only logs. Used when no queue is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs the reminder.
func (n LogNotifier) Notify(ctx context.Context, r Reminder) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "reminder due",
		slog.Int64("reminder_id", r.ID),
		slog.String("title", r.Title),
		slog.Time("due_at", r.DueAt),
	)
	return nil
}
