package onetime

import (
	"fmt"

	"github.com/opscrm/opscrm/internal/platform/httpx"
)

var (
	// ErrNotFound indicates the request does not exist.
	ErrNotFound = fmt.Errorf("one-time payment %w", httpx.ErrNotFound)
	// ErrTransition indicates a decision on a request in the wrong status.
	ErrTransition = fmt.Errorf("%w: one-time payment status does not allow this action", httpx.ErrConflict)
	// ErrCommentRequired indicates a rejection without a director comment.
	ErrCommentRequired = fmt.Errorf("%w: director_comment is required", httpx.ErrValidation)
	// ErrReplayed indicates an Idempotency-Key that was already used.
	ErrReplayed = fmt.Errorf("%w: request with this idempotency key was already processed", httpx.ErrConflict)
)
