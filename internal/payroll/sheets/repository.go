package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opscrm/opscrm/internal/notify"
	"github.com/opscrm/opscrm/internal/payroll/calc"
	"github.com/opscrm/opscrm/internal/payroll/registry"
	"github.com/opscrm/opscrm/internal/platform/db"
	"github.com/opscrm/opscrm/internal/shared"
)

// Repository defines read access to sheets and the transactional entry point.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Sheet, int, error)
	Get(ctx context.Context, id int64) (*Sheet, error)
	Items(ctx context.Context, sheetID int64) ([]Item, error)
	Payments(ctx context.Context, sheetID int64) ([]registry.Entry, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the steps of every sheet mutation. All methods run
// inside one repeatable-read transaction.
type TxRepository interface {
	Work(ctx context.Context, id int64) (*Work, error)
	SheetForUpdate(ctx context.Context, id int64) (*Sheet, error)
	InsertSheet(ctx context.Context, s Sheet) (int64, error)
	UpdateSheet(ctx context.Context, id int64, c Changes) error
	SetStatus(ctx context.Context, id int64, c StatusChange) error
	SetTotals(ctx context.Context, id int64, t calc.Totals) error
	DeleteSheet(ctx context.Context, id int64) error

	Items(ctx context.Context, sheetID int64) ([]Item, error)
	ItemForUpdate(ctx context.Context, id int64) (*Item, error)
	InsertItem(ctx context.Context, it Item) (int64, error)
	UpdateItem(ctx context.Context, it Item) error
	DeleteItem(ctx context.Context, id int64) error

	Employee(ctx context.Context, id int64) (*Employee, error)
	LatestRole(ctx context.Context, employeeID, workID int64) (string, error)
	Assignments(ctx context.Context, workID int64, p shared.Period) ([]Assignment, error)

	// Best-effort lookups. A failure leaves the transaction usable.
	AttendanceDays(ctx context.Context, employeeID, workID int64, p shared.Period) (int, error)
	CoveringRate(ctx context.Context, employeeID int64, p shared.Period) (float64, bool, error)
	ApprovedBonus(ctx context.Context, workID, employeeID int64) (float64, error)

	Banking(ctx context.Context, employeeID int64, selfEmployed bool) (registry.Banking, error)
	InsertPayment(ctx context.Context, e registry.Entry) (int64, error)
	InsertExpense(ctx context.Context, e Expense) error

	DirectorIDs(ctx context.Context) ([]int64, error)
	Notify(ctx context.Context, reqs ...notify.Request) ([]int64, error)
}

const sheetColumns = `ps.id, ps.work_id, COALESCE(w.work_title, ''), COALESCE(w.customer_name, ''), w.pm_id,
       ps.title, ps.period_from, ps.period_to, ps.status,
       ps.total_accrued, ps.total_bonus, ps.total_penalty, ps.total_advance_paid, ps.total_payout, ps.workers_count,
       COALESCE(ps.comment, ''), COALESCE(ps.director_comment, ''),
       ps.created_by, COALESCE(cu.name, ''), ps.approved_by, COALESCE(au.name, ''), ps.approved_at,
       ps.paid_by, ps.paid_at, ps.created_at, ps.updated_at`

const sheetFrom = `FROM payroll_sheets ps
LEFT JOIN works w ON w.id = ps.work_id
LEFT JOIN users cu ON cu.id = ps.created_by
LEFT JOIN users au ON au.id = ps.approved_by`

func scanSheet(row pgx.Row) (*Sheet, error) {
	var s Sheet
	err := row.Scan(&s.ID, &s.WorkID, &s.WorkTitle, &s.CustomerName, &s.PMID,
		&s.Title, &s.PeriodFrom, &s.PeriodTo, &s.Status,
		&s.TotalAccrued, &s.TotalBonus, &s.TotalPenalty, &s.TotalAdvancePaid, &s.TotalPayout, &s.WorkersCount,
		&s.Comment, &s.DirectorComment,
		&s.CreatedBy, &s.CreatorName, &s.ApprovedBy, &s.ApproverName, &s.ApprovedAt,
		&s.PaidBy, &s.PaidAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

const itemColumns = `pi.id, pi.sheet_id, pi.employee_id, COALESCE(pi.employee_name, e.fio, ''), COALESCE(e.phone, ''),
       COALESCE(pi.role_on_work, ''), COALESCE(pi.is_self_employed, false),
       pi.days_worked, pi.day_rate, pi.base_amount, pi.bonus, pi.overtime_hours, pi.overtime_rate, pi.overtime_amount,
       pi.penalty, COALESCE(pi.penalty_reason, ''), pi.advance_paid, pi.deductions, COALESCE(pi.deductions_reason, ''),
       pi.accrued, pi.payout, COALESCE(pi.payment_method, 'card'), COALESCE(pi.comment, ''), pi.created_at, pi.updated_at`

const itemFrom = `FROM payroll_items pi LEFT JOIN employees e ON e.id = pi.employee_id`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.SheetID, &it.EmployeeID, &it.EmployeeName, &it.EmployeePhone,
		&it.RoleOnWork, &it.IsSelfEmployed,
		&it.DaysWorked, &it.DayRate, &it.BaseAmount, &it.Bonus, &it.OvertimeHours, &it.OvertimeRate, &it.OvertimeAmount,
		&it.Penalty, &it.PenaltyReason, &it.AdvancePaid, &it.Deductions, &it.DeductionsReason,
		&it.Accrued, &it.Payout, &it.PaymentMethod, &it.Comment, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func listItems(ctx context.Context, q db.Querier, sheetID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` `+itemFrom+` WHERE pi.sheet_id = $1 ORDER BY pi.employee_name, pi.id`, sheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// WithTx wraps callback in repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Sheet, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.ReplaceAll(cond, "$?", fmt.Sprintf("$%d", len(args))))
	}
	if filter.WorkID > 0 {
		add("ps.work_id = $?", filter.WorkID)
	}
	if filter.Status != "" {
		add("ps.status = $?", string(filter.Status))
	}
	if filter.PeriodFrom != nil {
		add("ps.period_to >= $?", *filter.PeriodFrom)
	}
	if filter.PeriodTo != nil {
		add("ps.period_from <= $?", *filter.PeriodTo)
	}
	if filter.Scope.Restricted {
		add("(ps.created_by = $? OR w.pm_id = $?)", filter.Scope.UserID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payroll_sheets ps LEFT JOIN works w ON w.id = ps.work_id`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s %s%s ORDER BY ps.created_at DESC, ps.id DESC LIMIT $%d OFFSET $%d`,
		sheetColumns, sheetFrom, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Sheet, 0)
	for rows.Next() {
		s, err := scanSheet(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (*Sheet, error) {
	return scanSheet(r.pool.QueryRow(ctx, `SELECT `+sheetColumns+` `+sheetFrom+` WHERE ps.id = $1`, id))
}

func (r *repository) Items(ctx context.Context, sheetID int64) ([]Item, error) {
	return listItems(ctx, r.pool, sheetID)
}

func (r *repository) Payments(ctx context.Context, sheetID int64) ([]registry.Entry, error) {
	return registry.ListBySheet(ctx, r.pool, sheetID)
}
