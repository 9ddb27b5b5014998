package selfemployed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opscrm/opscrm/internal/payroll/registry"
	"github.com/opscrm/opscrm/internal/platform/db"
)

// Repository defines persistence for self-employed profiles.
type Repository interface {
	List(ctx context.Context, filter Filter) ([]Profile, error)
	Get(ctx context.Context, id int64) (*Profile, error)
	PaymentHistory(ctx context.Context, employeeID int64) ([]PaymentRecord, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional profile writes.
type TxRepository interface {
	EmployeeExists(ctx context.Context, employeeID int64) (bool, error)
	Insert(ctx context.Context, p Profile) (int64, error)
	Update(ctx context.Context, id int64, c Changes) (*Profile, error)
	LinkEmployee(ctx context.Context, employeeID int64, inn string) error
}

const profileColumns = `se.id, se.employee_id, COALESCE(e.fio, ''), se.full_name, se.inn,
       COALESCE(se.phone, ''), COALESCE(se.email, ''), COALESCE(se.bank_name, ''), COALESCE(se.bik, ''),
       COALESCE(se.corr_account, ''), COALESCE(se.account_number, ''), COALESCE(se.card_number, ''),
       se.npd_status, se.npd_registered_at, COALESCE(se.contract_number, ''), se.contract_date, se.contract_end_date,
       COALESCE(se.comment, ''), se.is_active, se.created_at, se.updated_at`

const profileFrom = `FROM self_employed se LEFT JOIN employees e ON e.id = se.employee_id`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.EmployeeID, &p.EmployeeFIO, &p.FullName, &p.INN,
		&p.Phone, &p.Email, &p.BankName, &p.BIK,
		&p.CorrAccount, &p.AccountNumber, &p.CardNumber,
		&p.NPDStatus, &p.NPDRegisteredAt, &p.ContractNumber, &p.ContractDate, &p.ContractEndDate,
		&p.Comment, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
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

func (r *repository) List(ctx context.Context, filter Filter) ([]Profile, error) {
	var (
		conds []string
		args  []any
	)
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conds = append(conds, fmt.Sprintf("se.is_active = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		conds = append(conds, fmt.Sprintf("(se.full_name ILIKE $%d OR se.inn ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+profileColumns+` `+profileFrom+where+` ORDER BY se.full_name, se.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (*Profile, error) {
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` `+profileFrom+` WHERE se.id = $1`, id))
}

// PaymentHistory merges registry entries and one-time requests of an employee.
func (r *repository) PaymentHistory(ctx context.Context, employeeID int64) ([]PaymentRecord, error) {
	entries, err := registry.ListByEmployee(ctx, r.pool, employeeID)
	if err != nil {
		return nil, err
	}
	out := make([]PaymentRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, PaymentRecord{
			Source:      SourceRegistry,
			ID:          e.ID,
			Amount:      e.Amount,
			PaymentType: string(e.PaymentType),
			Status:      string(e.Status),
			SheetTitle:  e.SheetTitle,
			PaidAt:      e.PaidAt,
			CreatedAt:   e.CreatedAt,
		})
	}

	rows, err := r.pool.Query(ctx, `SELECT otp.id, otp.amount, otp.payment_type, otp.status, COALESCE(otp.reason, ''), otp.paid_at, otp.created_at,
       EXISTS (SELECT 1 FROM payment_registry pr WHERE pr.one_time_id = otp.id)
FROM one_time_payments otp WHERE otp.employee_id = $1 ORDER BY otp.created_at DESC`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		rec := PaymentRecord{Source: SourceOneTime}
		var paidAt *time.Time
		if err := rows.Scan(&rec.ID, &rec.Amount, &rec.PaymentType, &rec.Status, &rec.Reason, &paidAt, &rec.CreatedAt, &rec.Linked); err != nil {
			return nil, err
		}
		rec.PaidAt = paidAt
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t *txRepository) EmployeeExists(ctx context.Context, employeeID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM employees WHERE id = $1)`, employeeID).Scan(&exists)
	return exists, err
}

func (t *txRepository) Insert(ctx context.Context, p Profile) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO self_employed
	(employee_id, full_name, inn, phone, email, bank_name, bik, corr_account, account_number, card_number,
	 npd_status, npd_registered_at, contract_number, contract_date, contract_end_date, comment, is_active, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''),
        $11, $12, NULLIF($13, ''), $14, $15, NULLIF($16, ''), true, NOW(), NOW())
RETURNING id`,
		p.EmployeeID, p.FullName, p.INN, p.Phone, p.Email, p.BankName, p.BIK, p.CorrAccount, p.AccountNumber, p.CardNumber,
		p.NPDStatus, p.NPDRegisteredAt, p.ContractNumber, p.ContractDate, p.ContractEndDate, p.Comment).Scan(&id)
	return id, err
}

func (t *txRepository) Update(ctx context.Context, id int64, c Changes) (*Profile, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE self_employed SET
    employee_id = COALESCE($2, employee_id),
    full_name = COALESCE($3, full_name),
    inn = COALESCE($4, inn),
    phone = COALESCE($5, phone),
    email = COALESCE($6, email),
    bank_name = COALESCE($7, bank_name),
    bik = COALESCE($8, bik),
    corr_account = COALESCE($9, corr_account),
    account_number = COALESCE($10, account_number),
    card_number = COALESCE($11, card_number),
    npd_status = COALESCE($12, npd_status),
    npd_registered_at = COALESCE($13, npd_registered_at),
    contract_number = COALESCE($14, contract_number),
    contract_date = COALESCE($15, contract_date),
    contract_end_date = COALESCE($16, contract_end_date),
    comment = COALESCE($17, comment),
    is_active = COALESCE($18, is_active),
    updated_at = NOW()
WHERE id = $1`, id, c.EmployeeID, c.FullName, c.INN, c.Phone, c.Email, c.BankName, c.BIK, c.CorrAccount,
		c.AccountNumber, c.CardNumber, c.NPDStatus, c.NPDRegisteredAt, c.ContractNumber, c.ContractDate,
		c.ContractEndDate, c.Comment, c.IsActive)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return scanProfile(t.tx.QueryRow(ctx, `SELECT `+profileColumns+` `+profileFrom+` WHERE se.id = $1`, id))
}

func (t *txRepository) LinkEmployee(ctx context.Context, employeeID int64, inn string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE employees SET is_self_employed = true, inn = $2 WHERE id = $1`, employeeID, inn)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEmployeeNotFound
	}
	return nil
}
