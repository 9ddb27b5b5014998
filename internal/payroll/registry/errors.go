package registry

import (
	"fmt"

	"github.com/opscrm/opscrm/internal/platform/httpx"
)

var (
	// ErrNotFound indicates the payment does not exist.
	ErrNotFound = fmt.Errorf("payment %w", httpx.ErrNotFound)
	// ErrInvalidStatus indicates an unknown target status.
	ErrInvalidStatus = fmt.Errorf("%w: unknown payment status", httpx.ErrValidation)
	// ErrTransition indicates a status move the registry does not allow.
	ErrTransition = fmt.Errorf("%w: payment status transition not allowed", httpx.ErrConflict)
)
