package recurring

import (
	"fmt"

	"github.com/tally-crm/tally/internal/shared"
)

// ErrNotFound indicates the recurring task does not exist.
var ErrNotFound = fmt.Errorf("recurring task %w", shared.ErrNotFound)
