package rates

import (
	"fmt"

	"github.com/opscrm/opscrm/internal/platform/httpx"
)

var (
	// ErrNotFound indicates the rate does not exist.
	ErrNotFound = fmt.Errorf("rate %w", httpx.ErrNotFound)
	// ErrEmployeeNotFound indicates the employee does not exist.
	ErrEmployeeNotFound = fmt.Errorf("employee %w", httpx.ErrNotFound)
	// ErrStartNotAfterOpen indicates a new rate starting on or before the open one.
	ErrStartNotAfterOpen = fmt.Errorf("%w: effective_from must be after the start of the current rate", httpx.ErrValidation)
	// ErrInvalidDayRate indicates a non-positive day rate.
	ErrInvalidDayRate = fmt.Errorf("%w: day_rate must be greater than zero", httpx.ErrValidation)
)
