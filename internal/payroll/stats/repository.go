package stats

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the read-only aggregate queries.
type Repository interface {
	Totals(ctx context.Context, year int) (Totals, error)
	WorkersCount(ctx context.Context, year int) (int, error)
	AvgDayRate(ctx context.Context) (float64, error)
	ByMonth(ctx context.Context, year int) ([]MonthRow, error)
	ByWork(ctx context.Context, year, limit int) ([]WorkRow, error)
	TopWorkers(ctx context.Context, year, limit int) ([]WorkerRow, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Totals(ctx context.Context, year int) (Totals, error) {
	var t Totals
	err := r.pool.QueryRow(ctx, `SELECT
    COALESCE(SUM(CASE WHEN status = 'paid' THEN total_accrued ELSE 0 END), 0)::float8,
    COALESCE(SUM(CASE WHEN status = 'paid' THEN total_payout ELSE 0 END), 0)::float8,
    COALESCE(SUM(CASE WHEN status IN ('pending', 'approved') THEN total_payout ELSE 0 END), 0)::float8,
    COUNT(*)
FROM payroll_sheets
WHERE EXTRACT(YEAR FROM period_from) = $1`, year).Scan(&t.Accrued, &t.Paid, &t.Pending, &t.SheetsCount)
	return t, err
}

func (r *repository) WorkersCount(ctx context.Context, year int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT pi.employee_id)
FROM payroll_items pi
JOIN payroll_sheets ps ON ps.id = pi.sheet_id
WHERE EXTRACT(YEAR FROM ps.period_from) = $1`, year).Scan(&n)
	return n, err
}

func (r *repository) AvgDayRate(ctx context.Context) (float64, error) {
	var avg float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(AVG(day_rate), 0)::float8 FROM employee_rates WHERE effective_to IS NULL`).Scan(&avg)
	return avg, err
}

func (r *repository) ByMonth(ctx context.Context, year int) ([]MonthRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT EXTRACT(MONTH FROM period_from)::int AS month,
    COALESCE(SUM(total_accrued), 0)::float8,
    COALESCE(SUM(CASE WHEN status = 'paid' THEN total_payout ELSE 0 END), 0)::float8
FROM payroll_sheets
WHERE EXTRACT(YEAR FROM period_from) = $1
GROUP BY 1
ORDER BY 1`, year)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MonthRow, error) {
		var m MonthRow
		err := row.Scan(&m.Month, &m.Accrued, &m.Paid)
		return m, err
	})
}

func (r *repository) ByWork(ctx context.Context, year, limit int) ([]WorkRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT ps.work_id, COALESCE(w.work_title, ''), COALESCE(w.customer_name, ''),
    COALESCE(SUM(ps.total_accrued), 0)::float8 AS accrued,
    COALESCE(SUM(CASE WHEN ps.status = 'paid' THEN ps.total_payout ELSE 0 END), 0)::float8
FROM payroll_sheets ps
LEFT JOIN works w ON w.id = ps.work_id
WHERE ps.work_id IS NOT NULL AND EXTRACT(YEAR FROM ps.period_from) = $1
GROUP BY ps.work_id, w.work_title, w.customer_name
ORDER BY accrued DESC
LIMIT $2`, year, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (WorkRow, error) {
		var w WorkRow
		err := row.Scan(&w.WorkID, &w.WorkTitle, &w.CustomerName, &w.Accrued, &w.Paid)
		return w, err
	})
}

func (r *repository) TopWorkers(ctx context.Context, year, limit int) ([]WorkerRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT pi.employee_id, pi.employee_name, COALESCE(SUM(pi.payout), 0)::float8 AS total_earned
FROM payroll_items pi
JOIN payroll_sheets ps ON ps.id = pi.sheet_id
WHERE ps.status = 'paid' AND EXTRACT(YEAR FROM ps.period_from) = $1
GROUP BY pi.employee_id, pi.employee_name
ORDER BY total_earned DESC
LIMIT $2`, year, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (WorkerRow, error) {
		var w WorkerRow
		err := row.Scan(&w.EmployeeID, &w.EmployeeName, &w.TotalEarned)
		return w, err
	})
}
