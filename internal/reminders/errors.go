package reminders

import (
	"errors"
	"fmt"

	"github.com/tally-crm/tally/internal/shared"
)

var (
	// ErrNotFound indicates the reminder does not exist.
	ErrNotFound = fmt.Errorf("reminder %w", shared.ErrNotFound)
	// ErrLinkNotFound indicates the remindable target does not exist.
	ErrLinkNotFound = fmt.Errorf("reminder link target %w", shared.ErrNotFound)
	// ErrDuplicateOccurrence is returned when a system reminder for the same
	// task occurrence and notice already exists.
	ErrDuplicateOccurrence = errors.New("reminder already exists for occurrence")
)
