// Package recurrence computes due dates for recurring tasks and reminders.
// All functions are pure.
package recurrence

import (
	"fmt"
	"time"
)

// Kind is a recurrence cadence.
type Kind string

const (
	Daily     Kind = "DAILY"
	Weekly    Kind = "WEEKLY"
	Monthly   Kind = "MONTHLY"
	Quarterly Kind = "QUARTERLY"
	Yearly    Kind = "YEARLY"
)

// TaskFrequencies are the cadences a recurring task may use.
var TaskFrequencies = []Kind{Weekly, Monthly, Quarterly, Yearly}

// ReminderRecurrences are the cadences a reminder may repeat on.
var ReminderRecurrences = []Kind{Daily, Weekly, Monthly, Yearly}

// IsValid reports whether k is a known cadence.
func (k Kind) IsValid() bool {
	switch k {
	case Daily, Weekly, Monthly, Quarterly, Yearly:
		return true
	default:
		return false
	}
}

// IsTaskFrequency reports whether k may drive a recurring task.
func (k Kind) IsTaskFrequency() bool {
	return k == Weekly || k == Monthly || k == Quarterly || k == Yearly
}

// IsReminderRecurrence reports whether k may repeat a reminder.
func (k Kind) IsReminderRecurrence() bool {
	return k == Daily || k == Weekly || k == Monthly || k == Yearly
}

// Label returns the human readable name.
func (k Kind) Label() string {
	switch k {
	case Daily:
		return "Daily"
	case Weekly:
		return "Weekly"
	case Monthly:
		return "Monthly"
	case Quarterly:
		return "Quarterly"
	case Yearly:
		return "Yearly"
	default:
		return string(k)
	}
}

// Next returns the due date one step after from. Month based steps keep the
// day of month and clamp to the last day of a shorter target month.
func Next(kind Kind, from time.Time) (time.Time, error) {
	switch kind {
	case Daily:
		return from.AddDate(0, 0, 1), nil
	case Weekly:
		return from.AddDate(0, 0, 7), nil
	case Monthly:
		return AddMonthsClamped(from, 1), nil
	case Quarterly:
		return AddMonthsClamped(from, 3), nil
	case Yearly:
		return AddMonthsClamped(from, 12), nil
	default:
		return from, fmt.Errorf("recurrence: unknown kind %q", kind)
	}
}

// MustNext is Next for kinds already validated by the caller.
func MustNext(kind Kind, from time.Time) time.Time {
	next, err := Next(kind, from)
	if err != nil {
		panic(err)
	}
	return next
}

// DaysBefore is the lead time before a task's due date at which the advance
// reminder is created. Zero for cadences that are not task frequencies.
func DaysBefore(kind Kind) int {
	switch kind {
	case Weekly:
		return 2
	case Monthly:
		return 7
	case Quarterly:
		return 14
	case Yearly:
		return 30
	default:
		return 0
	}
}

// NoticeDate is the date the advance reminder for due becomes active.
func NoticeDate(kind Kind, due time.Time) time.Time {
	return due.AddDate(0, 0, -DaysBefore(kind))
}

// AddMonthsClamped adds months to t keeping the clock time. When the day of
// month does not exist in the target month it is clamped to the last day.
func AddMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	total := int(m) - 1 + months
	newY := y + total/12
	newM := total % 12
	if newM < 0 {
		newM += 12
		newY--
	}
	month := time.Month(newM + 1)

	if last := daysIn(newY, month, t.Location()); d > last {
		d = last
	}
	return time.Date(newY, month, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
