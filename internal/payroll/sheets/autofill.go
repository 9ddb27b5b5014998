package sheets

import (
	"context"
	"log/slog"

	"github.com/opscrm/opscrm/internal/auth"
	"github.com/opscrm/opscrm/internal/payroll/registry"
	"github.com/opscrm/opscrm/internal/shared"
)

// AutoFill adds an item for every employee assigned to the sheet's work in
// its period who is not on the sheet yet. Running it twice fills nothing.
func (s *Service) AutoFill(ctx context.Context, sheetID int64, actor auth.Principal) (*AutoFillResult, error) {
	res := &AutoFillResult{Items: make([]Item, 0)}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		*res = AutoFillResult{Items: make([]Item, 0)}
		sheet, err := lockEditable(ctx, tx, sheetID, ScopeFor(actor))
		if err != nil {
			return err
		}
		if sheet.WorkID == nil {
			return ErrUnboundSheet
		}
		period := shared.Period{From: sheet.PeriodFrom, To: sheet.PeriodTo}

		existing, err := tx.Items(ctx, sheetID)
		if err != nil {
			return err
		}
		present := make(map[int64]struct{}, len(existing))
		for _, it := range existing {
			present[it.EmployeeID] = struct{}{}
		}

		assignments, err := tx.Assignments(ctx, *sheet.WorkID, period)
		if err != nil {
			return err
		}
		for _, a := range assignments {
			if _, ok := present[a.ID]; ok {
				res.Skipped++
				continue
			}
			overlap, ok := period.Overlap(a.DateFrom, a.DateTo)
			if !ok {
				res.Skipped++
				continue
			}
			it := s.derive(ctx, tx, sheet, a, overlap)
			if it.ID, err = tx.InsertItem(ctx, it); err != nil {
				return err
			}
			present[a.ID] = struct{}{}
			res.Filled++
			res.Items = append(res.Items, it)
		}
		_, err = refreshTotals(ctx, tx, sheetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor.UserID, shared.AuditAutoFill, sheetID, map[string]any{"filled": res.Filled, "skipped": res.Skipped})
	return res, nil
}

// derive builds the item of one assignment. A missing rate falls back to the
// employee day rate. Lookup failures are logged and degrade to a zero rate,
// the overlap length and no bonus.
func (s *Service) derive(ctx context.Context, tx TxRepository, sheet *Sheet, a Assignment, overlap shared.Period) Item {
	period := shared.Period{From: sheet.PeriodFrom, To: sheet.PeriodTo}
	log := s.logger.With(slog.Int64("sheet_id", sheet.ID), slog.Int64("employee_id", a.ID))

	dayRate := a.DayRate
	rate, found, err := tx.CoveringRate(ctx, a.ID, period)
	switch {
	case err != nil:
		log.Warn("auto-fill rate lookup", slog.Any("error", err))
		dayRate = 0
	case found:
		dayRate = rate
	}

	days, err := tx.AttendanceDays(ctx, a.ID, a.WorkID, period)
	if err != nil {
		log.Warn("auto-fill attendance lookup", slog.Any("error", err))
		days = 0
	}
	if days == 0 {
		days = overlap.Days()
	}

	bonus, err := tx.ApprovedBonus(ctx, a.WorkID, a.ID)
	if err != nil {
		log.Warn("auto-fill bonus lookup", slog.Any("error", err))
		bonus = 0
	}

	method := registry.MethodCard
	if a.IsSelfEmployed {
		method = registry.MethodSelfEmployed
	}
	it := Item{
		SheetID:        sheet.ID,
		EmployeeID:     a.ID,
		EmployeeName:   a.FIO,
		RoleOnWork:     a.RoleOnWork,
		IsSelfEmployed: a.IsSelfEmployed,
		DaysWorked:     float64(days),
		DayRate:        dayRate,
		Bonus:          bonus,
		PaymentMethod:  method,
	}
	it.Recompute()
	return it
}
