// Package rates keeps the dated history of employee day rates. Each employee
// has at most one open interval; inserting a new rate closes the previous one.
package rates

import "time"

// Rate is an employee_rates row.
type Rate struct {
	ID            int64      `json:"id"`
	EmployeeID    int64      `json:"employee_id"`
	RoleTag       string     `json:"role_tag,omitempty"`
	DayRate       float64    `json:"day_rate"`
	ShiftRate     *float64   `json:"shift_rate,omitempty"`
	OvertimeRate  *float64   `json:"overtime_rate,omitempty"`
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to"`
	Comment       string     `json:"comment,omitempty"`
	CreatedBy     int64      `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Open reports whether the rate has no end date.
func (r Rate) Open() bool {
	return r.EffectiveTo == nil
}

// Overlaps reports whether the rate is in force at any day of [from, to].
func (r Rate) Overlaps(from, to time.Time) bool {
	if r.EffectiveFrom.After(to) {
		return false
	}
	return r.EffectiveTo == nil || !r.EffectiveTo.Before(from)
}

// Latest picks the covering rate with the newest start, the rule auto-fill uses.
func Latest(history []Rate, from, to time.Time) (Rate, bool) {
	var (
		best  Rate
		found bool
	)
	for _, r := range history {
		if !r.Overlaps(from, to) {
			continue
		}
		if !found || r.EffectiveFrom.After(best.EffectiveFrom) {
			best, found = r, true
		}
	}
	return best, found
}

// Changes are the editable fields of an existing rate.
type Changes struct {
	RoleTag      *string
	DayRate      *float64
	ShiftRate    *float64
	OvertimeRate *float64
	Comment      *string
}
