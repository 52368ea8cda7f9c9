// Package reminders holds due-dated notices and the engine that dispatches
// them, snoozes them and rolls recurring ones forward.
package reminders

import (
	"errors"
	"time"

	"github.com/tally-crm/tally/internal/recurrence"
	"github.com/tally-crm/tally/internal/shared"
)

// Priority ranks reminders.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	return p == PriorityLow || p == PriorityNormal || p == PriorityHigh
}

// LinkKind names the entity a reminder points at.
type LinkKind string

const (
	LinkClient  LinkKind = "client"
	LinkProject LinkKind = "project"
	LinkInvoice LinkKind = "invoice"
)

// IsValid reports whether k is a known link kind.
func (k LinkKind) IsValid() bool {
	return k == LinkClient || k == LinkProject || k == LinkInvoice
}

// Link is the remindable target: one of client, project or invoice.
type Link struct {
	Kind LinkKind `json:"kind"`
	ID   int64    `json:"id"`
}

// Notice distinguishes the two reminders a recurring task produces per occurrence.
type Notice string

const (
	NoticeDue     Notice = "due"
	NoticeAdvance Notice = "advance"
)

// Source ties a system reminder to the recurring task occurrence that created it.
type Source struct {
	RecurringTaskID int64     `json:"recurring_task_id"`
	Occurrence      time.Time `json:"occurrence"`
	Notice          Notice    `json:"notice"`
}

// Reminder is a due-dated notice.
type Reminder struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	DueAt       time.Time        `json:"due_at"`
	Priority    Priority         `json:"priority"`
	Recurrence  *recurrence.Kind `json:"recurrence,omitempty"`
	Link        *Link            `json:"link,omitempty"`
	IsSystem    bool             `json:"is_system"`
	Source      *Source          `json:"source,omitempty"`
	NotifiedAt  *time.Time       `json:"notified_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CreatedBy   *int64           `json:"created_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// IsPending reports whether the reminder is not completed.
func (r Reminder) IsPending() bool {
	return r.CompletedAt == nil
}

// IsOverdue holds iff the reminder is pending and due before now.
func (r Reminder) IsOverdue(now time.Time) bool {
	return r.CompletedAt == nil && r.DueAt.Before(now)
}

// IsRecurring reports whether completing the reminder spawns a successor.
func (r Reminder) IsRecurring() bool {
	return r.Recurrence != nil
}

// Successor returns the next occurrence of a recurring reminder.
func (r Reminder) Successor(now time.Time) (Reminder, error) {
	if r.Recurrence == nil {
		return Reminder{}, errors.New("reminders: successor of non-recurring reminder")
	}
	due, err := recurrence.Next(*r.Recurrence, r.DueAt)
	if err != nil {
		return Reminder{}, err
	}
	next := r
	next.ID = 0
	next.DueAt = due
	next.Source = nil
	next.NotifiedAt = nil
	next.CompletedAt = nil
	next.CreatedAt = now
	next.UpdatedAt = now
	return next, nil
}

// SystemReminder builds an engine-created reminder.
func SystemReminder(title, description string, due time.Time, link *Link, src Source, priority Priority) Reminder {
	if !priority.IsValid() {
		priority = PriorityNormal
	}
	return Reminder{
		Title:       title,
		Description: description,
		DueAt:       due,
		Priority:    priority,
		Link:        link,
		IsSystem:    true,
		Source:      &src,
	}
}

// Scope selects one of the query predicates.
type Scope string

const (
	ScopeAll       Scope = ""
	ScopePending   Scope = "pending"
	ScopeCompleted Scope = "completed"
	ScopeOverdue   Scope = "overdue"
	ScopeUpcoming  Scope = "upcoming"
)

// IsValid reports whether s is a known scope.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeAll, ScopePending, ScopeCompleted, ScopeOverdue, ScopeUpcoming:
		return true
	default:
		return false
	}
}

// ListFilter narrows reminder listings.
type ListFilter struct {
	Scope Scope
	// Days is the upcoming window; defaults to 7.
	Days     int
	Link     *Link
	IsSystem *bool
	Limit    int
	Offset   int
}

// Matches evaluates the filter against r at now. Repositories that cannot
// push a predicate into SQL use it directly.
func (f ListFilter) Matches(r Reminder, now time.Time) bool {
	switch f.Scope {
	case ScopePending:
		if !r.IsPending() {
			return false
		}
	case ScopeCompleted:
		if r.IsPending() {
			return false
		}
	case ScopeOverdue:
		if !r.IsOverdue(now) {
			return false
		}
	case ScopeUpcoming:
		end := now.AddDate(0, 0, f.UpcomingDays())
		if !r.IsPending() || r.DueAt.Before(now) || r.DueAt.After(end) {
			return false
		}
	}
	if f.Link != nil && (r.Link == nil || *r.Link != *f.Link) {
		return false
	}
	if f.IsSystem != nil && r.IsSystem != *f.IsSystem {
		return false
	}
	return true
}

// UpcomingDays returns the upcoming window in days.
func (f ListFilter) UpcomingDays() int {
	if f.Days <= 0 {
		return 7
	}
	return f.Days
}

// CreateInput is the user-facing create form.
type CreateInput struct {
	Title       string    `json:"title" validate:"required,max=255"`
	Description string    `json:"description" validate:"max=5000"`
	DueAt       time.Time `json:"due_at" validate:"required"`
	Priority    Priority  `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH"`
	Recurrence  string    `json:"recurrence" validate:"omitempty,oneof=DAILY WEEKLY MONTHLY YEARLY"`
	Link        *Link     `json:"link"`
}

// BatchResult summarises a ProcessDueReminders pass.
type BatchResult struct {
	Processed int
	Notified  int
	Spawned   int
	Failures  []shared.BatchFailure
}
