package sheets

import (
	"fmt"
	"strings"
	"time"

	"github.com/opscrm/opscrm/internal/shared"
)

// DefaultTitle names a sheet when the caller gives no title. Work-bound
// sheets are named after the month of period_from and the customer.
func DefaultTitle(w *Work, from, to time.Time) string {
	if w != nil {
		name := strings.TrimSpace(w.CustomerName)
		if name == "" {
			name = w.Title
		}
		return fmt.Sprintf("Ведомость %s %d — %s", shared.MonthName(from.Month()), from.Year(), name)
	}
	return fmt.Sprintf("Ведомость %s — %s", from.Format(shared.DateLayout), to.Format(shared.DateLayout))
}
