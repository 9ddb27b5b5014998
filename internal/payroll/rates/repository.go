package rates

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opscrm/opscrm/internal/platform/db"
)

// Repository defines persistence for employee rates.
type Repository interface {
	List(ctx context.Context, employeeID int64) ([]Rate, error)
	Current(ctx context.Context, employeeID int64) (*Rate, error)
	Get(ctx context.Context, id int64) (*Rate, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the transactional steps of a rate change.
type TxRepository interface {
	EmployeeExists(ctx context.Context, employeeID int64) (bool, error)
	OpenForUpdate(ctx context.Context, employeeID int64) (*Rate, error)
	Close(ctx context.Context, id int64, effectiveTo time.Time) error
	Insert(ctx context.Context, r Rate) (int64, error)
	Update(ctx context.Context, id int64, c Changes) error
	SyncEmployeeDayRate(ctx context.Context, employeeID int64, dayRate float64) error
}

const rateColumns = `id, employee_id, COALESCE(role_tag, ''), day_rate, shift_rate, overtime_rate,
       effective_from, effective_to, COALESCE(comment, ''), COALESCE(created_by, 0), created_at`

func scanRate(row pgx.Row) (*Rate, error) {
	var r Rate
	err := row.Scan(&r.ID, &r.EmployeeID, &r.RoleTag, &r.DayRate, &r.ShiftRate, &r.OvertimeRate,
		&r.EffectiveFrom, &r.EffectiveTo, &r.Comment, &r.CreatedBy, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// CoveringDayRate returns the day rate of the newest interval overlapping
// [from, to]. The bool is false when no interval covers the range.
func CoveringDayRate(ctx context.Context, q db.Querier, employeeID int64, from, to time.Time) (float64, bool, error) {
	var rate float64
	err := q.QueryRow(ctx, `SELECT day_rate FROM employee_rates
WHERE employee_id = $1 AND effective_from <= $2 AND (effective_to IS NULL OR effective_to >= $3)
ORDER BY effective_from DESC LIMIT 1`, employeeID, to, from).Scan(&rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return rate, true, nil
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

func (r *repository) List(ctx context.Context, employeeID int64) ([]Rate, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+rateColumns+` FROM employee_rates
WHERE employee_id = $1 ORDER BY effective_from DESC, id DESC`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Rate, 0)
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rate)
	}
	return out, rows.Err()
}

func (r *repository) Current(ctx context.Context, employeeID int64) (*Rate, error) {
	rate, err := scanRate(r.pool.QueryRow(ctx, `SELECT `+rateColumns+` FROM employee_rates
WHERE employee_id = $1 AND effective_to IS NULL ORDER BY effective_from DESC LIMIT 1`, employeeID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rate, err
}

func (r *repository) Get(ctx context.Context, id int64) (*Rate, error) {
	return scanRate(r.pool.QueryRow(ctx, `SELECT `+rateColumns+` FROM employee_rates WHERE id = $1`, id))
}

func (t *txRepository) EmployeeExists(ctx context.Context, employeeID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM employees WHERE id = $1)`, employeeID).Scan(&exists)
	return exists, err
}

func (t *txRepository) OpenForUpdate(ctx context.Context, employeeID int64) (*Rate, error) {
	rate, err := scanRate(t.tx.QueryRow(ctx, `SELECT `+rateColumns+` FROM employee_rates
WHERE employee_id = $1 AND effective_to IS NULL ORDER BY effective_from DESC LIMIT 1 FOR UPDATE`, employeeID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rate, err
}

func (t *txRepository) Close(ctx context.Context, id int64, effectiveTo time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE employee_rates SET effective_to = $2 WHERE id = $1 AND effective_to IS NULL`, id, effectiveTo)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) Insert(ctx context.Context, r Rate) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO employee_rates
	(employee_id, role_tag, day_rate, shift_rate, overtime_rate, effective_from, comment, created_by, created_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, NULLIF($7, ''), $8, NOW()) RETURNING id`,
		r.EmployeeID, r.RoleTag, r.DayRate, r.ShiftRate, r.OvertimeRate, r.EffectiveFrom, r.Comment, r.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepository) Update(ctx context.Context, id int64, c Changes) error {
	tag, err := t.tx.Exec(ctx, `UPDATE employee_rates SET
    role_tag = COALESCE($2, role_tag),
    day_rate = COALESCE($3, day_rate),
    shift_rate = COALESCE($4, shift_rate),
    overtime_rate = COALESCE($5, overtime_rate),
    comment = COALESCE($6, comment)
WHERE id = $1`, id, c.RoleTag, c.DayRate, c.ShiftRate, c.OvertimeRate, c.Comment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) SyncEmployeeDayRate(ctx context.Context, employeeID int64, dayRate float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE employees SET day_rate = $2 WHERE id = $1`, employeeID, dayRate)
	return err
}
