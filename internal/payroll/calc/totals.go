package calc

// Line is the slice of an item the aggregate needs.
type Line struct {
	Accrued     float64
	Bonus       float64
	Penalty     float64
	Deductions  float64
	AdvancePaid float64
	Payout      float64
}

// Totals is the denormalised header of a sheet.
type Totals struct {
	TotalAccrued     float64 `json:"total_accrued"`
	TotalBonus       float64 `json:"total_bonus"`
	TotalPenalty     float64 `json:"total_penalty"`
	TotalAdvancePaid float64 `json:"total_advance_paid"`
	TotalPayout      float64 `json:"total_payout"`
	WorkersCount     int     `json:"workers_count"`
}

// Aggregate sums lines into sheet totals. Penalty includes deductions and the
// worker count is the number of lines, not distinct employees.
func Aggregate(lines []Line) Totals {
	var t Totals
	for _, l := range lines {
		t.TotalAccrued += l.Accrued
		t.TotalBonus += l.Bonus
		t.TotalPenalty += l.Penalty + l.Deductions
		t.TotalAdvancePaid += l.AdvancePaid
		t.TotalPayout += l.Payout
	}
	t.WorkersCount = len(lines)
	return t
}
