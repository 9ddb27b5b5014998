package sheets

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/opscrm/opscrm/internal/payroll/registry"
)

// materialize writes one pending salary entry per positive payout and, for
// work-bound sheets, the matching labor cost expense. It returns the number
// of registry entries created.
func materialize(ctx context.Context, tx TxRepository, sheet *Sheet, items []Item, actorID int64, batch uuid.UUID) (int, error) {
	created := 0
	for _, it := range items {
		if it.Payout <= 0 {
			continue
		}
		banking, err := tx.Banking(ctx, it.EmployeeID, it.IsSelfEmployed)
		if err != nil {
			return 0, fmt.Errorf("banking for employee %d: %w", it.EmployeeID, err)
		}
		method := it.PaymentMethod
		if method == "" {
			method = registry.MethodCard
		}
		sheetID, itemID := sheet.ID, it.ID
		_, err = tx.InsertPayment(ctx, registry.Entry{
			SheetID:       &sheetID,
			ItemID:        &itemID,
			WorkID:        sheet.WorkID,
			EmployeeID:    it.EmployeeID,
			EmployeeName:  it.EmployeeName,
			Amount:        it.Payout,
			PaymentType:   registry.TypeSalary,
			PaymentMethod: method,
			Status:        registry.StatusPending,
			BatchID:       &batch,
			CreatedBy:     actorID,
			Banking:       banking,
		})
		if err != nil {
			return 0, err
		}
		created++

		if sheet.WorkID == nil {
			continue
		}
		err = tx.InsertExpense(ctx, Expense{
			WorkID:       *sheet.WorkID,
			Amount:       it.Payout,
			Date:         sheet.PeriodTo,
			EmployeeID:   it.EmployeeID,
			EmployeeName: it.EmployeeName,
			Comment:      fmt.Sprintf("Ведомость #%d", sheet.ID),
			CreatedBy:    actorID,
		})
		if err != nil {
			return 0, err
		}
	}
	return created, nil
}
