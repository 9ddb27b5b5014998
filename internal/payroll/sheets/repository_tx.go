package sheets

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opscrm/opscrm/internal/notify"
	"github.com/opscrm/opscrm/internal/payroll/calc"
	"github.com/opscrm/opscrm/internal/payroll/rates"
	"github.com/opscrm/opscrm/internal/payroll/registry"
	"github.com/opscrm/opscrm/internal/shared"
)

type txRepository struct {
	tx pgx.Tx
}

// savepoint runs fn in a nested transaction so that a failed statement does
// not abort the enclosing one.
func (t *txRepository) savepoint(ctx context.Context, fn func(pgx.Tx) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func (t *txRepository) Work(ctx context.Context, id int64) (*Work, error) {
	var w Work
	err := t.tx.QueryRow(ctx, `SELECT id, COALESCE(work_title, ''), COALESCE(customer_name, ''), pm_id, created_by
FROM works WHERE id = $1`, id).Scan(&w.ID, &w.Title, &w.CustomerName, &w.PMID, &w.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (t *txRepository) SheetForUpdate(ctx context.Context, id int64) (*Sheet, error) {
	return scanSheet(t.tx.QueryRow(ctx, `SELECT `+sheetColumns+` `+sheetFrom+` WHERE ps.id = $1 FOR UPDATE OF ps`, id))
}

func (t *txRepository) InsertSheet(ctx context.Context, s Sheet) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO payroll_sheets
	(work_id, title, period_from, period_to, status, comment, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NOW(), NOW()) RETURNING id`,
		s.WorkID, s.Title, s.PeriodFrom, s.PeriodTo, string(StatusDraft), s.Comment, s.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateSheet(ctx context.Context, id int64, c Changes) error {
	tag, err := t.tx.Exec(ctx, `UPDATE payroll_sheets SET
    title = COALESCE($2, title),
    period_from = COALESCE($3, period_from),
    period_to = COALESCE($4, period_to),
    comment = COALESCE($5, comment),
    updated_at = NOW()
WHERE id = $1`, id, c.Title, c.PeriodFrom, c.PeriodTo, c.Comment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) SetStatus(ctx context.Context, id int64, c StatusChange) error {
	tag, err := t.tx.Exec(ctx, `UPDATE payroll_sheets SET
    status = $2,
    approved_by = COALESCE($3, approved_by),
    approved_at = CASE WHEN $3::bigint IS NULL THEN approved_at ELSE NOW() END,
    paid_by = COALESCE($4, paid_by),
    paid_at = CASE WHEN $4::bigint IS NULL THEN paid_at ELSE NOW() END,
    director_comment = COALESCE($5, director_comment),
    updated_at = NOW()
WHERE id = $1`, id, string(c.Status), c.ApprovedBy, c.PaidBy, c.DirectorComment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) SetTotals(ctx context.Context, id int64, tot calc.Totals) error {
	_, err := t.tx.Exec(ctx, `UPDATE payroll_sheets SET
    total_accrued = $2, total_bonus = $3, total_penalty = $4, total_advance_paid = $5,
    total_payout = $6, workers_count = $7, updated_at = NOW()
WHERE id = $1`, id, tot.TotalAccrued, tot.TotalBonus, tot.TotalPenalty, tot.TotalAdvancePaid, tot.TotalPayout, tot.WorkersCount)
	return err
}

func (t *txRepository) DeleteSheet(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM payroll_items WHERE sheet_id = $1`, id); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM payroll_sheets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) Items(ctx context.Context, sheetID int64) ([]Item, error) {
	return listItems(ctx, t.tx, sheetID)
}

func (t *txRepository) ItemForUpdate(ctx context.Context, id int64) (*Item, error) {
	it, err := scanItem(t.tx.QueryRow(ctx, `SELECT `+itemColumns+` `+itemFrom+` WHERE pi.id = $1 FOR UPDATE OF pi`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (t *txRepository) InsertItem(ctx context.Context, it Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO payroll_items
	(sheet_id, employee_id, employee_name, role_on_work, is_self_employed,
	 days_worked, day_rate, base_amount, bonus, overtime_hours, overtime_rate, overtime_amount,
	 penalty, penalty_reason, advance_paid, deductions, deductions_reason, accrued, payout,
	 payment_method, comment, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''), $15, $16, NULLIF($17, ''),
        $18, $19, $20, NULLIF($21, ''), NOW(), NOW())
RETURNING id`,
		it.SheetID, it.EmployeeID, it.EmployeeName, it.RoleOnWork, it.IsSelfEmployed,
		it.DaysWorked, it.DayRate, it.BaseAmount, it.Bonus, it.OvertimeHours, it.OvertimeRate, it.OvertimeAmount,
		it.Penalty, it.PenaltyReason, it.AdvancePaid, it.Deductions, it.DeductionsReason, it.Accrued, it.Payout,
		string(it.PaymentMethod), it.Comment).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateItem(ctx context.Context, it Item) error {
	tag, err := t.tx.Exec(ctx, `UPDATE payroll_items SET
    role_on_work = NULLIF($2, ''),
    days_worked = $3, day_rate = $4, base_amount = $5, bonus = $6,
    overtime_hours = $7, overtime_rate = $8, overtime_amount = $9,
    penalty = $10, penalty_reason = NULLIF($11, ''), advance_paid = $12,
    deductions = $13, deductions_reason = NULLIF($14, ''),
    accrued = $15, payout = $16, payment_method = $17, comment = NULLIF($18, ''),
    updated_at = NOW()
WHERE id = $1`,
		it.ID, it.RoleOnWork, it.DaysWorked, it.DayRate, it.BaseAmount, it.Bonus,
		it.OvertimeHours, it.OvertimeRate, it.OvertimeAmount,
		it.Penalty, it.PenaltyReason, it.AdvancePaid, it.Deductions, it.DeductionsReason,
		it.Accrued, it.Payout, string(it.PaymentMethod), it.Comment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (t *txRepository) DeleteItem(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM payroll_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (t *txRepository) Employee(ctx context.Context, id int64) (*Employee, error) {
	var e Employee
	err := t.tx.QueryRow(ctx, `SELECT id, COALESCE(fio, ''), COALESCE(day_rate, 0), COALESCE(is_self_employed, false)
FROM employees WHERE id = $1`, id).Scan(&e.ID, &e.FIO, &e.DayRate, &e.IsSelfEmployed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmployeeNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (t *txRepository) LatestRole(ctx context.Context, employeeID, workID int64) (string, error) {
	var role string
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(role_on_work, '') FROM employee_assignments
WHERE employee_id = $1 AND work_id = $2 ORDER BY id DESC LIMIT 1`, employeeID, workID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return role, err
}

func (t *txRepository) Assignments(ctx context.Context, workID int64, p shared.Period) ([]Assignment, error) {
	rows, err := t.tx.Query(ctx, `SELECT ea.employee_id, COALESCE(e.fio, ''), COALESCE(e.day_rate, 0), COALESCE(e.is_self_employed, false),
       ea.work_id, ea.date_from, ea.date_to, COALESCE(ea.role_on_work, '')
FROM employee_assignments ea
JOIN employees e ON e.id = ea.employee_id
WHERE ea.work_id = $1 AND ea.date_from <= $2 AND (ea.date_to IS NULL OR ea.date_to >= $3)
ORDER BY ea.employee_id, ea.date_from, ea.id`, workID, p.To, p.From)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Assignment, error) {
		var a Assignment
		err := row.Scan(&a.ID, &a.FIO, &a.DayRate, &a.IsSelfEmployed, &a.WorkID, &a.DateFrom, &a.DateTo, &a.RoleOnWork)
		return a, err
	})
}

func (t *txRepository) AttendanceDays(ctx context.Context, employeeID, workID int64, p shared.Period) (int, error) {
	var days int
	err := t.savepoint(ctx, func(sp pgx.Tx) error {
		return sp.QueryRow(ctx, `SELECT COUNT(DISTINCT date) FROM employee_plan
WHERE employee_id = $1 AND work_id = $2 AND kind = 'work' AND date BETWEEN $3 AND $4`,
			employeeID, workID, p.From, p.To).Scan(&days)
	})
	return days, err
}

func (t *txRepository) CoveringRate(ctx context.Context, employeeID int64, p shared.Period) (float64, bool, error) {
	var (
		rate  float64
		found bool
	)
	err := t.savepoint(ctx, func(sp pgx.Tx) error {
		var err error
		rate, found, err = rates.CoveringDayRate(ctx, sp, employeeID, p.From, p.To)
		return err
	})
	return rate, found, err
}

func (t *txRepository) ApprovedBonus(ctx context.Context, workID, employeeID int64) (float64, error) {
	var sum float64
	err := t.savepoint(ctx, func(sp pgx.Tx) error {
		return sp.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM bonus_requests
WHERE work_id = $1 AND status = 'approved' AND (
    employees_json::jsonb @> jsonb_build_array($2::bigint)
    OR employees_json::jsonb @> jsonb_build_array(jsonb_build_object('employee_id', $2::bigint))
    OR employees_json::jsonb @> jsonb_build_array(jsonb_build_object('id', $2::bigint))
)`, workID, employeeID).Scan(&sum)
	})
	return sum, err
}

func (t *txRepository) Banking(ctx context.Context, employeeID int64, selfEmployed bool) (registry.Banking, error) {
	return registry.SnapshotBanking(ctx, t.tx, employeeID, selfEmployed)
}

func (t *txRepository) InsertPayment(ctx context.Context, e registry.Entry) (int64, error) {
	return registry.Insert(ctx, t.tx, e)
}

func (t *txRepository) InsertExpense(ctx context.Context, e Expense) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO work_expenses
	(work_id, category, amount, date, fot_employee_id, fot_employee_name, comment, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.WorkID, ExpenseCategory, e.Amount, e.Date, e.EmployeeID, e.EmployeeName, e.Comment, e.CreatedBy, time.Now())
	return err
}

func (t *txRepository) DirectorIDs(ctx context.Context) ([]int64, error) {
	return notify.DirectorIDs(ctx, t.tx)
}

func (t *txRepository) Notify(ctx context.Context, reqs ...notify.Request) ([]int64, error) {
	return notify.Insert(ctx, t.tx, reqs...)
}
