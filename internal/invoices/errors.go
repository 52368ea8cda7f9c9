package invoices

import (
	"fmt"

	"github.com/tally-crm/tally/internal/shared"
)

// ErrNotFound indicates the invoice does not exist.
var ErrNotFound = fmt.Errorf("invoice %w", shared.ErrNotFound)
