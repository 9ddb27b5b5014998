package registry

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/opscrm/opscrm/internal/platform/db"
)

// SnapshotBanking reads the payee details of an employee. Self-employed
// employees prefer their active profile, falling back field by field to the
// employee record. Missing rows yield blank fields.
func SnapshotBanking(ctx context.Context, q db.Querier, employeeID int64, selfEmployed bool) (Banking, error) {
	var emp Banking
	err := q.QueryRow(ctx, `SELECT COALESCE(inn, ''), COALESCE(bank_name, ''), COALESCE(bik, ''), COALESCE(account_number, '')
FROM employees WHERE id = $1`, employeeID).Scan(&emp.INN, &emp.BankName, &emp.BIK, &emp.AccountNumber)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Banking{}, err
	}
	if !selfEmployed {
		return emp, nil
	}
	var profile Banking
	err = q.QueryRow(ctx, `SELECT COALESCE(inn, ''), COALESCE(bank_name, ''), COALESCE(bik, ''), COALESCE(account_number, ''),
       COALESCE(card_number, ''), COALESCE(contract_number, '')
FROM self_employed WHERE employee_id = $1 AND is_active = true
ORDER BY id DESC LIMIT 1`, employeeID).Scan(&profile.INN, &profile.BankName, &profile.BIK, &profile.AccountNumber,
		&profile.CardNumber, &profile.ContractNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return emp, nil
		}
		return Banking{}, err
	}
	return MergeBanking(profile, emp), nil
}

// MergeBanking keeps every non-empty field of primary and fills the rest from fallback.
func MergeBanking(primary, fallback Banking) Banking {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return Banking{
		INN:            pick(primary.INN, fallback.INN),
		BankName:       pick(primary.BankName, fallback.BankName),
		BIK:            pick(primary.BIK, fallback.BIK),
		AccountNumber:  pick(primary.AccountNumber, fallback.AccountNumber),
		CardNumber:     pick(primary.CardNumber, fallback.CardNumber),
		ContractNumber: pick(primary.ContractNumber, fallback.ContractNumber),
	}
}

// Insert stores a new pending entry using the caller's transaction.
func Insert(ctx context.Context, q db.Querier, e Entry) (int64, error) {
	if e.Status == "" {
		e.Status = StatusPending
	}
	if e.PaymentMethod == "" {
		e.PaymentMethod = MethodCard
	}
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO payment_registry
	(sheet_id, item_id, one_time_id, work_id, employee_id, employee_name, amount, payment_type, payment_method,
	 inn, bank_name, bik, account_number, card_number, contract_number, status, batch_id, comment, created_by,
	 created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NULLIF($18, ''), $19, NOW(), NOW())
RETURNING id`,
		e.SheetID, e.ItemID, e.OneTimeID, e.WorkID, e.EmployeeID, e.EmployeeName, e.Amount, string(e.PaymentType), string(e.PaymentMethod),
		e.INN, e.BankName, e.BIK, e.AccountNumber, e.CardNumber, e.ContractNumber, string(e.Status), e.BatchID, e.Comment, e.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}
