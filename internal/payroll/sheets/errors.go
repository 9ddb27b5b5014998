package sheets

import (
	"fmt"

	"github.com/opscrm/opscrm/internal/platform/httpx"
)

var (
	// ErrNotFound indicates the sheet does not exist.
	ErrNotFound = fmt.Errorf("payroll sheet %w", httpx.ErrNotFound)
	// ErrItemNotFound indicates the line item does not exist.
	ErrItemNotFound = fmt.Errorf("payroll item %w", httpx.ErrNotFound)
	// ErrWorkNotFound indicates the referenced work order does not exist.
	ErrWorkNotFound = fmt.Errorf("work %w", httpx.ErrNotFound)
	// ErrEmployeeNotFound indicates the referenced employee does not exist.
	ErrEmployeeNotFound = fmt.Errorf("employee %w", httpx.ErrNotFound)
	// ErrInvalidTransition is the base of every rejected state change.
	ErrInvalidTransition = fmt.Errorf("%w: invalid sheet transition", httpx.ErrConflict)
	// ErrNotEditable indicates a mutation of a sheet outside draft or rework.
	ErrNotEditable = fmt.Errorf("%w: sheet can be edited only in draft or rework", httpx.ErrConflict)
	// ErrNotDeletable indicates a delete of a non-draft sheet.
	ErrNotDeletable = fmt.Errorf("%w: only draft sheets can be deleted", httpx.ErrConflict)
	// ErrInvalidPeriod indicates period_from after period_to.
	ErrInvalidPeriod = fmt.Errorf("%w: period_from must not be after period_to", httpx.ErrValidation)
	// ErrCommentRequired indicates a rework without a director comment.
	ErrCommentRequired = fmt.Errorf("%w: director_comment is required", httpx.ErrValidation)
	// ErrUnboundSheet indicates auto-fill on a sheet without a work order.
	ErrUnboundSheet = fmt.Errorf("%w: sheet is not bound to a work", httpx.ErrValidation)
	// ErrDuplicateEmployee indicates a second manual item for the same employee.
	ErrDuplicateEmployee = fmt.Errorf("%w: employee is already on the sheet", httpx.ErrConflict)
	// ErrOutOfScope indicates a project manager touching a sheet of another work.
	ErrOutOfScope = fmt.Errorf("%w: sheet belongs to another project manager", httpx.ErrForbidden)
)

func invalidTransition(op Op, from Status) error {
	return fmt.Errorf("%w: cannot %s a sheet in status %s", ErrInvalidTransition, op, from)
}
