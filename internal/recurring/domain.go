// Package recurring tracks recurring billing and maintenance obligations and
// turns each due occurrence into a system reminder.
package recurring

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tally-crm/tally/internal/recurrence"
	"github.com/tally-crm/tally/internal/reminders"
	"github.com/tally-crm/tally/internal/shared"
)

// Task is a recurring obligation. Date fields hold midnight UTC.
type Task struct {
	ID            int64               `json:"id"`
	Title         string              `json:"title"`
	Description   string              `json:"description,omitempty"`
	ClientID      *int64              `json:"client_id,omitempty"`
	Frequency     recurrence.Kind     `json:"frequency"`
	NextDueAt     time.Time           `json:"next_due_at"`
	Active        bool                `json:"active"`
	Amount        decimal.NullDecimal `json:"amount"`
	ContractStart *time.Time          `json:"contract_start,omitempty"`
	ContractEnd   *time.Time          `json:"contract_end,omitempty"`
	// LastProcessedOn is the day ProcessDueTasks last advanced the task.
	LastProcessedOn *time.Time `json:"last_processed_on,omitempty"`
	// RemindedFor is the occurrence the last advance notice was created for.
	RemindedFor *time.Time `json:"reminded_for,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsDue reports whether the occurrence at NextDueAt should be processed on today.
func (t Task) IsDue(today time.Time) bool {
	if !t.Active || t.NextDueAt.After(today) {
		return false
	}
	return t.LastProcessedOn == nil || !shared.SameDay(*t.LastProcessedOn, today)
}

// NoticeDate is the day the advance notice for the next occurrence opens.
func (t Task) NoticeDate() time.Time {
	return recurrence.NoticeDate(t.Frequency, t.NextDueAt)
}

// NeedsAdvanceNotice reports whether the advance window for NextDueAt is open
// on today and no notice exists for that occurrence yet.
func (t Task) NeedsAdvanceNotice(today time.Time) bool {
	if !t.Active || recurrence.DaysBefore(t.Frequency) == 0 {
		return false
	}
	if today.Before(t.NoticeDate()) || !today.Before(t.NextDueAt) {
		return false
	}
	return t.RemindedFor == nil || !shared.SameDay(*t.RemindedFor, t.NextDueAt)
}

// Advance moves NextDueAt one step forward. A task whose contract ends before
// the new due date is deactivated.
func (t *Task) Advance() error {
	next, err := recurrence.Next(t.Frequency, t.NextDueAt)
	if err != nil {
		return err
	}
	t.NextDueAt = next
	if t.ContractEnd != nil && t.ContractEnd.Before(next) {
		t.Active = false
	}
	return nil
}

// Link points reminders at the task's client.
func (t Task) Link() *reminders.Link {
	if t.ClientID == nil {
		return nil
	}
	return &reminders.Link{Kind: reminders.LinkClient, ID: *t.ClientID}
}

func (t Task) reminderDescription() string {
	desc := t.Description
	if t.Amount.Valid {
		amount := fmt.Sprintf("Amount: %s", t.Amount.Decimal.StringFixed(2))
		if desc == "" {
			return amount
		}
		desc += "\n" + amount
	}
	return desc
}

// DueReminder builds the system reminder for the occurrence at NextDueAt.
func (t Task) DueReminder(now time.Time) reminders.Reminder {
	rem := reminders.SystemReminder(t.Title, t.reminderDescription(), t.NextDueAt, t.Link(),
		reminders.Source{RecurringTaskID: t.ID, Occurrence: t.NextDueAt, Notice: reminders.NoticeDue},
		reminders.PriorityNormal)
	rem.CreatedAt, rem.UpdatedAt = now, now
	return rem
}

// AdvanceReminder builds the advance notice for the occurrence at NextDueAt.
func (t Task) AdvanceReminder(now time.Time) reminders.Reminder {
	title := fmt.Sprintf("Upcoming: %s (due %s)", t.Title, t.NextDueAt.Format(time.DateOnly))
	rem := reminders.SystemReminder(title, t.reminderDescription(), t.NoticeDate(), t.Link(),
		reminders.Source{RecurringTaskID: t.ID, Occurrence: t.NextDueAt, Notice: reminders.NoticeAdvance},
		reminders.PriorityNormal)
	rem.CreatedAt, rem.UpdatedAt = now, now
	return rem
}

// LogAction names what happened to an occurrence.
type LogAction string

const (
	ActionReminderCreated   LogAction = "reminder_created"
	ActionManuallyCompleted LogAction = "manually_completed"
	ActionSkipped           LogAction = "skipped"
)

// Log is an append only record of one occurrence.
type Log struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	DueDate   time.Time `json:"due_date"`
	Action    LogAction `json:"action"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter narrows task listings.
type ListFilter struct {
	Active   *bool
	ClientID *int64
	Limit    int
	Offset   int
}

// CreateInput is the create form for a task.
type CreateInput struct {
	Title         string           `json:"title" validate:"required,max=255"`
	Description   string           `json:"description" validate:"max=5000"`
	ClientID      *int64           `json:"client_id" validate:"omitempty,min=1"`
	Frequency     string           `json:"frequency" validate:"required,oneof=WEEKLY MONTHLY QUARTERLY YEARLY"`
	NextDueAt     time.Time        `json:"next_due_at" validate:"required"`
	Amount        *decimal.Decimal `json:"amount"`
	ContractStart *time.Time       `json:"contract_start"`
	ContractEnd   *time.Time       `json:"contract_end"`
}

// Result summarises an engine pass.
type Result struct {
	Processed int
	Created   int
	Failures  []shared.BatchFailure
}
