// Package stats aggregates yearly payroll figures for the dashboard.
package stats

// Stats is the yearly payroll summary.
type Stats struct {
	Year         int         `json:"year"`
	TotalAccrued float64     `json:"total_accrued"`
	TotalPaid    float64     `json:"total_paid"`
	TotalPending float64     `json:"total_pending"`
	SheetsCount  int         `json:"sheets_count"`
	WorkersCount int         `json:"workers_count"`
	AvgDayRate   int64       `json:"avg_day_rate"`
	ByMonth      []MonthRow  `json:"by_month"`
	ByWork       []WorkRow   `json:"by_work"`
	TopWorkers   []WorkerRow `json:"top_workers"`
}

// Totals is the sheet-level part of the summary.
type Totals struct {
	Accrued     float64
	Paid        float64
	Pending     float64
	SheetsCount int
}

// MonthRow sums sheets by the month their period starts in.
type MonthRow struct {
	Month   int     `json:"month"`
	Accrued float64 `json:"accrued"`
	Paid    float64 `json:"paid"`
}

// WorkRow sums sheets bound to one work.
type WorkRow struct {
	WorkID       int64   `json:"work_id"`
	WorkTitle    string  `json:"work_title"`
	CustomerName string  `json:"customer_name"`
	Accrued      float64 `json:"accrued"`
	Paid         float64 `json:"paid"`
}

// WorkerRow is an employee's payout across paid sheets.
type WorkerRow struct {
	EmployeeID   int64   `json:"employee_id"`
	EmployeeName string  `json:"employee_name"`
	TotalEarned  float64 `json:"total_earned"`
}

// TopLimit caps by_work and top_workers.
const TopLimit = 10
