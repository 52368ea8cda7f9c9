package shared

import (
	"errors"
	"fmt"
)

// BatchFailure records an entity a scheduled pass could not process.
type BatchFailure struct {
	ID  int64
	Err error
}

// Error renders the failure for logs.
func (f BatchFailure) Error() string {
	return fmt.Sprintf("id %d: %v", f.ID, f.Err)
}

// Unwrap exposes the underlying error.
func (f BatchFailure) Unwrap() error {
	return f.Err
}

// JoinFailures combines failures into a single error, nil when empty.
func JoinFailures(failures []BatchFailure) error {
	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}
