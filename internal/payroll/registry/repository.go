package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opscrm/opscrm/internal/platform/db"
)

// Repository defines persistence for registry entries.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Entry, int, error)
	Get(ctx context.Context, id int64) (*Entry, error)
	SheetHeader(ctx context.Context, sheetID int64) (*SheetHeader, error)
	ExportRows(ctx context.Context, sheetID int64) ([]ExportRow, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional registry writes.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (*Entry, error)
	UpdateStatus(ctx context.Context, id int64, change StatusChange) error
}

const entryColumns = `pr.id, pr.sheet_id, COALESCE(ps.title, ''), pr.item_id, pr.one_time_id, pr.work_id,
       pr.employee_id, pr.employee_name, pr.amount, pr.payment_type, pr.payment_method,
       COALESCE(pr.inn, ''), COALESCE(pr.bank_name, ''), COALESCE(pr.bik, ''), COALESCE(pr.account_number, ''),
       COALESCE(pr.card_number, ''), COALESCE(pr.contract_number, ''),
       pr.status, pr.batch_id, COALESCE(pr.bank_ref, ''), COALESCE(pr.payment_order_number, ''), COALESCE(pr.comment, ''),
       pr.paid_at, COALESCE(pr.created_by, 0), pr.created_at, pr.updated_at`

const entryFrom = `FROM payment_registry pr LEFT JOIN payroll_sheets ps ON ps.id = pr.sheet_id`

func scanEntry(row pgx.Row, extra ...any) (Entry, error) {
	var e Entry
	dest := []any{
		&e.ID, &e.SheetID, &e.SheetTitle, &e.ItemID, &e.OneTimeID, &e.WorkID,
		&e.EmployeeID, &e.EmployeeName, &e.Amount, &e.PaymentType, &e.PaymentMethod,
		&e.INN, &e.BankName, &e.BIK, &e.AccountNumber, &e.CardNumber, &e.ContractNumber,
		&e.Status, &e.BatchID, &e.BankRef, &e.PaymentOrderNumber, &e.Comment,
		&e.PaidAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return e, err
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListBySheet returns the entries materialised for a sheet.
func ListBySheet(ctx context.Context, q db.Querier, sheetID int64) ([]Entry, error) {
	rows, err := q.Query(ctx, `SELECT `+entryColumns+` `+entryFrom+` WHERE pr.sheet_id = $1 ORDER BY pr.id`, sheetID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// ListByEmployee returns the payment history of an employee, newest first.
func ListByEmployee(ctx context.Context, q db.Querier, employeeID int64) ([]Entry, error) {
	rows, err := q.Query(ctx, `SELECT `+entryColumns+` `+entryFrom+` WHERE pr.employee_id = $1 ORDER BY pr.created_at DESC, pr.id DESC`, employeeID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.SheetID > 0 {
		add("pr.sheet_id = $%d", filter.SheetID)
	}
	if filter.EmployeeID > 0 {
		add("pr.employee_id = $%d", filter.EmployeeID)
	}
	if filter.Status != "" {
		add("pr.status = $%d", string(filter.Status))
	}
	if filter.PaymentMethod != "" {
		add("pr.payment_method = $%d", string(filter.PaymentMethod))
	}
	if filter.DateFrom != nil {
		add("pr.created_at >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		add("pr.created_at < $%d", filter.DateTo.AddDate(0, 0, 1))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payment_registry pr`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s %s%s ORDER BY pr.created_at DESC, pr.id DESC LIMIT $%d OFFSET $%d`,
		entryColumns, entryFrom, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Entry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` `+entryFrom+` WHERE pr.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *repository) SheetHeader(ctx context.Context, sheetID int64) (*SheetHeader, error) {
	var h SheetHeader
	err := r.pool.QueryRow(ctx, `SELECT id, title, period_from, period_to FROM payroll_sheets WHERE id = $1`, sheetID).
		Scan(&h.ID, &h.Title, &h.PeriodFrom, &h.PeriodTo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sheet %d: %w", sheetID, ErrNotFound)
		}
		return nil, err
	}
	return &h, nil
}

// ExportRows loads the sheet's entries, or every open entry when sheetID is zero.
// Banking fields prefer the current employee record over the snapshot.
func (r *repository) ExportRows(ctx context.Context, sheetID int64) ([]ExportRow, error) {
	where := `pr.status IN ('pending', 'processing')`
	var args []any
	if sheetID > 0 {
		where = `pr.sheet_id = $1`
		args = append(args, sheetID)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+`,
       COALESCE(e.is_self_employed, false), COALESCE(e.inn, ''), COALESCE(e.bank_name, ''), COALESCE(e.bik, ''),
       COALESCE(e.account_number, ''), COALESCE(se.contract_number, '')
`+entryFrom+`
LEFT JOIN employees e ON e.id = pr.employee_id
LEFT JOIN LATERAL (
    SELECT contract_number FROM self_employed WHERE employee_id = pr.employee_id ORDER BY is_active DESC, id DESC LIMIT 1
) se ON true
WHERE `+where+` ORDER BY pr.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ExportRow, 0)
	for rows.Next() {
		var (
			row     ExportRow
			current Banking
		)
		entry, err := scanEntry(rows, &row.SelfEmployed, &current.INN, &current.BankName, &current.BIK,
			&current.AccountNumber, &current.ContractNumber)
		if err != nil {
			return nil, err
		}
		row.Entry = entry
		row.Banking = MergeBanking(current, entry.Banking)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (*Entry, error) {
	e, err := scanEntry(t.tx.QueryRow(ctx, `SELECT `+entryColumns+` `+entryFrom+` WHERE pr.id = $1 FOR UPDATE OF pr`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (t *txRepository) UpdateStatus(ctx context.Context, id int64, change StatusChange) error {
	paidAt := "paid_at"
	if change.Status == StatusPaid {
		paidAt = "NOW()"
	}
	tag, err := t.tx.Exec(ctx, `UPDATE payment_registry SET
    status = $2,
    bank_ref = COALESCE($3, bank_ref),
    payment_order_number = COALESCE($4, payment_order_number),
    comment = COALESCE($5, comment),
    paid_at = `+paidAt+`,
    updated_at = NOW()
WHERE id = $1`, id, string(change.Status), change.BankRef, change.PaymentOrderNumber, change.Comment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
