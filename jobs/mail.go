package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
)

// MailJob delivers mail:send tasks. Delivery is logged until an SMTP relay
// is configured for the deployment.
type MailJob struct {
	From   string
	Logger *slog.Logger
}

// NewMailJob constructs the mail job.
func NewMailJob(from string, logger *slog.Logger) *MailJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailJob{From: from, Logger: logger}
}

// Handle processes the send-email task.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if strings.TrimSpace(payload.To) == "" {
		j.Logger.Warn("mail task without recipient", slog.String("subject", payload.Subject))
		return errors.Join(errors.New("mail: missing recipient"), asynq.SkipRetry)
	}
	j.Logger.Info("email dispatched",
		slog.String("from", j.From),
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject),
		slog.Int("body_bytes", len(payload.Body)),
	)
	return nil
}
