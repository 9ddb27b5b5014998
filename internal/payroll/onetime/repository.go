package onetime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opscrm/opscrm/internal/notify"
	"github.com/opscrm/opscrm/internal/payroll/registry"
	"github.com/opscrm/opscrm/internal/platform/db"
)

// Repository defines persistence for one-time requests.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Payment, int, error)
	Get(ctx context.Context, id int64) (*Payment, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the transactional steps of the workflow.
type TxRepository interface {
	Employee(ctx context.Context, id int64) (*Employee, error)
	Insert(ctx context.Context, p Payment) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (*Payment, error)
	Decide(ctx context.Context, id int64, d Decision) error
	MarkPaid(ctx context.Context, id int64) error

	Banking(ctx context.Context, employeeID int64, selfEmployed bool) (registry.Banking, error)
	InsertPayment(ctx context.Context, e registry.Entry) (int64, error)
	SettleRegistry(ctx context.Context, oneTimeID int64) (int64, error)

	DirectorIDs(ctx context.Context) ([]int64, error)
	Notify(ctx context.Context, reqs ...notify.Request) ([]int64, error)
}

const paymentColumns = `otp.id, otp.employee_id, COALESCE(otp.employee_name, ''), otp.work_id, COALESCE(w.work_title, ''),
       otp.amount, COALESCE(otp.reason, ''), COALESCE(otp.payment_method, 'card'), COALESCE(otp.payment_type, 'one_time'),
       COALESCE(otp.comment, ''), COALESCE(otp.receipt_url, ''), otp.status, COALESCE(otp.director_comment, ''),
       otp.requested_by, COALESCE(u.name, ''), otp.approved_by, otp.approved_at, otp.paid_at, otp.created_at, otp.updated_at`

const paymentFrom = `FROM one_time_payments otp
LEFT JOIN works w ON w.id = otp.work_id
LEFT JOIN users u ON u.id = otp.requested_by`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.EmployeeID, &p.EmployeeName, &p.WorkID, &p.WorkTitle,
		&p.Amount, &p.Reason, &p.PaymentMethod, &p.PaymentType,
		&p.Comment, &p.ReceiptURL, &p.Status, &p.DirectorComment,
		&p.RequestedBy, &p.RequesterName, &p.ApprovedBy, &p.ApprovedAt, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
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

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Payment, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("otp.status = $%d", string(filter.Status))
	}
	if filter.WorkID > 0 {
		add("otp.work_id = $%d", filter.WorkID)
	}
	if filter.EmployeeID > 0 {
		add("otp.employee_id = $%d", filter.EmployeeID)
	}
	if filter.PaymentType != "" {
		add("otp.payment_type = $%d", string(filter.PaymentType))
	}
	if filter.RequestedBy > 0 {
		add("otp.requested_by = $%d", filter.RequestedBy)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM one_time_payments otp`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s %s%s ORDER BY otp.created_at DESC, otp.id DESC LIMIT $%d OFFSET $%d`,
		paymentColumns, paymentFrom, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (*Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` `+paymentFrom+` WHERE otp.id = $1`, id))
}

func (t *txRepository) Employee(ctx context.Context, id int64) (*Employee, error) {
	var e Employee
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(fio, ''), COALESCE(is_self_employed, false) FROM employees WHERE id = $1`, id).
		Scan(&e.FIO, &e.IsSelfEmployed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (t *txRepository) Insert(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO one_time_payments
	(employee_id, employee_name, work_id, amount, reason, payment_method, payment_type, comment, receipt_url,
	 status, requested_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, NOW(), NOW()) RETURNING id`,
		p.EmployeeID, p.EmployeeName, p.WorkID, p.Amount, p.Reason, string(p.PaymentMethod), string(p.PaymentType),
		p.Comment, p.ReceiptURL, string(StatusPending), p.RequestedBy).Scan(&id)
	return id, err
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (*Payment, error) {
	return scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` `+paymentFrom+` WHERE otp.id = $1 FOR UPDATE OF otp`, id))
}

func (t *txRepository) Decide(ctx context.Context, id int64, d Decision) error {
	tag, err := t.tx.Exec(ctx, `UPDATE one_time_payments SET
    status = $2,
    approved_by = COALESCE($3, approved_by),
    approved_at = CASE WHEN $3::bigint IS NULL THEN approved_at ELSE NOW() END,
    director_comment = COALESCE($4, director_comment),
    updated_at = NOW()
WHERE id = $1`, id, string(d.Status), d.ApprovedBy, d.DirectorComment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) MarkPaid(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE one_time_payments SET status = $2, paid_at = NOW(), updated_at = NOW() WHERE id = $1`,
		id, string(StatusPaid))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) Banking(ctx context.Context, employeeID int64, selfEmployed bool) (registry.Banking, error) {
	return registry.SnapshotBanking(ctx, t.tx, employeeID, selfEmployed)
}

func (t *txRepository) InsertPayment(ctx context.Context, e registry.Entry) (int64, error) {
	return registry.Insert(ctx, t.tx, e)
}

// SettleRegistry marks the open registry entry of a request paid.
func (t *txRepository) SettleRegistry(ctx context.Context, oneTimeID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE payment_registry SET status = 'paid', paid_at = NOW(), updated_at = NOW()
WHERE one_time_id = $1 AND status IN ('pending', 'processing')`, oneTimeID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) DirectorIDs(ctx context.Context) ([]int64, error) {
	return notify.DirectorIDs(ctx, t.tx)
}

func (t *txRepository) Notify(ctx context.Context, reqs ...notify.Request) ([]int64, error) {
	return notify.Insert(ctx, t.tx, reqs...)
}
