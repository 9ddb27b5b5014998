package sheets

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opscrm/opscrm/internal/auth"
	"github.com/opscrm/opscrm/internal/payroll/calc"
	"github.com/opscrm/opscrm/internal/payroll/registry"
	"github.com/opscrm/opscrm/internal/platform/httpx"
	"github.com/opscrm/opscrm/internal/shared"
)

// Items lists the line items of a sheet visible to the scope.
func (s *Service) Items(ctx context.Context, sheetID int64, scope Scope) ([]Item, error) {
	if sheetID <= 0 {
		return nil, fmt.Errorf("%w: sheet_id is required", httpx.ErrValidation)
	}
	sheet, err := s.repo.Get(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(sheet) {
		return nil, ErrOutOfScope
	}
	return s.repo.Items(ctx, sheetID)
}

// AddItem inserts a manual line item and recomputes the sheet totals.
func (s *Service) AddItem(ctx context.Context, req ItemRequest, actor auth.Principal) (*Item, error) {
	it := Item{
		SheetID:          req.SheetID,
		EmployeeID:       req.EmployeeID,
		RoleOnWork:       req.RoleOnWork,
		DaysWorked:       req.DaysWorked,
		DayRate:          req.DayRate,
		Bonus:            req.Bonus,
		OvertimeHours:    req.OvertimeHours,
		OvertimeRate:     req.OvertimeRate,
		Penalty:          req.Penalty,
		PenaltyReason:    req.PenaltyReason,
		AdvancePaid:      req.AdvancePaid,
		Deductions:       req.Deductions,
		DeductionsReason: req.DeductionsReason,
		PaymentMethod:    req.PaymentMethod,
		Comment:          req.Comment,
	}
	if err := validateInputs(it.Inputs()); err != nil {
		return nil, err
	}
	if it.PaymentMethod == "" {
		it.PaymentMethod = registry.MethodCard
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sheet, err := lockEditable(ctx, tx, req.SheetID, ScopeFor(actor))
		if err != nil {
			return err
		}
		existing, err := tx.Items(ctx, sheet.ID)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.EmployeeID == req.EmployeeID {
				return ErrDuplicateEmployee
			}
		}
		emp, err := tx.Employee(ctx, req.EmployeeID)
		if err != nil {
			return err
		}
		it.EmployeeName = emp.FIO
		it.IsSelfEmployed = emp.IsSelfEmployed
		if it.DayRate <= 0 {
			it.DayRate = emp.DayRate
		}
		if it.RoleOnWork == "" && sheet.WorkID != nil {
			if it.RoleOnWork, err = tx.LatestRole(ctx, emp.ID, *sheet.WorkID); err != nil {
				return err
			}
		}
		it.Recompute()
		if it.ID, err = tx.InsertItem(ctx, it); err != nil {
			return err
		}
		_, err = refreshTotals(ctx, tx, sheet.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordItem(ctx, actor.UserID, shared.AuditCreate, it)
	return &it, nil
}

// UpdateItem merges the request over the stored inputs and recomputes.
func (s *Service) UpdateItem(ctx context.Context, id int64, req ItemUpdateRequest, actor auth.Principal) (*Item, error) {
	var it Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.ItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if _, err := lockEditable(ctx, tx, current.SheetID, ScopeFor(actor)); err != nil {
			return err
		}
		it = mergeItem(*current, req)
		if err := validateInputs(it.Inputs()); err != nil {
			return err
		}
		it.Recompute()
		if err := tx.UpdateItem(ctx, it); err != nil {
			return err
		}
		_, err = refreshTotals(ctx, tx, it.SheetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordItem(ctx, actor.UserID, shared.AuditUpdate, it)
	return &it, nil
}

// DeleteItem removes a line item and recomputes the sheet totals.
func (s *Service) DeleteItem(ctx context.Context, id int64, actor auth.Principal) error {
	var it Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.ItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if _, err := lockEditable(ctx, tx, current.SheetID, ScopeFor(actor)); err != nil {
			return err
		}
		it = *current
		if err := tx.DeleteItem(ctx, id); err != nil {
			return err
		}
		_, err = refreshTotals(ctx, tx, current.SheetID)
		return err
	})
	if err != nil {
		return err
	}
	s.recordItem(ctx, actor.UserID, shared.AuditDelete, it)
	return nil
}

// Recalc reapplies the formula to every item without touching inputs.
func (s *Service) Recalc(ctx context.Context, sheetID int64, actor auth.Principal) (*RecalcResult, error) {
	var changed int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := lockEditable(ctx, tx, sheetID, ScopeFor(actor)); err != nil {
			return err
		}
		items, err := tx.Items(ctx, sheetID)
		if err != nil {
			return err
		}
		for _, it := range items {
			before := it
			it.Recompute()
			if before == it {
				continue
			}
			if err := tx.UpdateItem(ctx, it); err != nil {
				return err
			}
			changed++
		}
		_, err = refreshTotals(ctx, tx, sheetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor.UserID, shared.AuditRecalc, sheetID, map[string]any{"items_changed": changed})
	sheet, err := s.repo.Get(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.Items(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	return &RecalcResult{Sheet: sheet, Items: items}, nil
}

func mergeItem(it Item, req ItemUpdateRequest) Item {
	setF := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setS := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setS(&it.RoleOnWork, req.RoleOnWork)
	setF(&it.DaysWorked, req.DaysWorked)
	setF(&it.DayRate, req.DayRate)
	setF(&it.Bonus, req.Bonus)
	setF(&it.OvertimeHours, req.OvertimeHours)
	setF(&it.OvertimeRate, req.OvertimeRate)
	setF(&it.Penalty, req.Penalty)
	setS(&it.PenaltyReason, req.PenaltyReason)
	setF(&it.AdvancePaid, req.AdvancePaid)
	setF(&it.Deductions, req.Deductions)
	setS(&it.DeductionsReason, req.DeductionsReason)
	setS(&it.Comment, req.Comment)
	if req.PaymentMethod != nil && *req.PaymentMethod != "" {
		it.PaymentMethod = *req.PaymentMethod
	}
	return it
}

func validateInputs(in calc.Inputs) error {
	if err := in.Validate(); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func (s *Service) recordItem(ctx context.Context, actorID int64, action string, it Item) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payroll_item",
		EntityID: shared.EntityRef(it.ID),
		Meta:     map[string]any{"sheet_id": it.SheetID, "employee_id": it.EmployeeID, "payout": it.Payout},
	})
	if err != nil {
		s.logger.Warn("audit payroll item", slog.String("action", action), slog.Int64("item_id", it.ID), slog.Any("error", err))
	}
	s.invalidateStats(ctx)
}
