package selfemployed

import (
	"fmt"

	"github.com/opscrm/opscrm/internal/platform/httpx"
)

var (
	// ErrNotFound indicates the profile does not exist.
	ErrNotFound = fmt.Errorf("self-employed profile %w", httpx.ErrNotFound)
	// ErrEmployeeNotFound indicates the linked employee does not exist.
	ErrEmployeeNotFound = fmt.Errorf("employee %w", httpx.ErrNotFound)
)
