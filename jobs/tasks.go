package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tally-crm/tally/internal/reminders"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueMail carries outgoing notifications.
	QueueMail = "mail"

	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskReminderNotify renders a due reminder into an email.
	TaskReminderNotify = "reminder:notify"

	// TaskRemindersProcessDue dispatches due reminders.
	TaskRemindersProcessDue = "reminders:process_due"
	// TaskRecurringProcessDue turns due recurring task occurrences into reminders.
	TaskRecurringProcessDue = "recurring:process_due"
	// TaskRecurringUpcoming creates advance notices for upcoming occurrences.
	TaskRecurringUpcoming = "recurring:upcoming"
	// TaskInvoicesOverdueSweep marks sent invoices past their due date overdue.
	TaskInvoicesOverdueSweep = "invoices:overdue_sweep"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// ReminderNotifyPayload snapshots a reminder at dispatch time.
type ReminderNotifyPayload struct {
	ReminderID  int64           `json:"reminder_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	DueAt       time.Time       `json:"due_at"`
	Priority    string          `json:"priority"`
	IsSystem    bool            `json:"is_system"`
	Link        *reminders.Link `json:"link,omitempty"`
}

// NewReminderNotifyTask constructs the notification task for rem.
func NewReminderNotifyTask(rem reminders.Reminder) (*asynq.Task, error) {
	data, err := json.Marshal(ReminderNotifyPayload{
		ReminderID:  rem.ID,
		Title:       rem.Title,
		Description: rem.Description,
		DueAt:       rem.DueAt,
		Priority:    string(rem.Priority),
		IsSystem:    rem.IsSystem,
		Link:        rem.Link,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReminderNotify, data), nil
}

// PassPayload parameterises a scheduled engine pass. Force skips the daily
// run marker, for manual replays.
type PassPayload struct {
	Force bool `json:"force,omitempty"`
}

// NewPassTask constructs a scheduled pass task of the given type.
func NewPassTask(taskType string, force bool) (*asynq.Task, error) {
	data, err := json.Marshal(PassPayload{Force: force})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}
