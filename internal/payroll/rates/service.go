package rates

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opscrm/opscrm/internal/platform/httpx"
	"github.com/opscrm/opscrm/internal/shared"
)

// Invalidator drops cached aggregates that read open rates.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service manages the rate registry.
type Service struct {
	repo   Repository
	audit  shared.Auditor
	stats  Invalidator
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new service. stats may be nil.
func NewService(repo Repository, audit shared.Auditor, stats Invalidator, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, stats: stats, logger: logger, now: time.Now}
}

// List returns the rate history of an employee, newest first.
func (s *Service) List(ctx context.Context, employeeID int64) ([]Rate, error) {
	if employeeID <= 0 {
		return nil, fmt.Errorf("%w: employee_id is required", httpx.ErrValidation)
	}
	return s.repo.List(ctx, employeeID)
}

// Current returns the open rate of an employee, or nil.
func (s *Service) Current(ctx context.Context, employeeID int64) (*Rate, error) {
	if employeeID <= 0 {
		return nil, fmt.Errorf("%w: employee_id is required", httpx.ErrValidation)
	}
	return s.repo.Current(ctx, employeeID)
}

// Create inserts a new rate. The previous open interval is closed the day
// before the new one starts, and employees.day_rate mirrors the new value.
func (s *Service) Create(ctx context.Context, req CreateRequest, actorID int64) (*Rate, error) {
	if req.DayRate <= 0 {
		return nil, ErrInvalidDayRate
	}
	from := shared.Truncate(s.now())
	if req.EffectiveFrom != "" {
		d, err := shared.ParseDate(req.EffectiveFrom)
		if err != nil {
			return nil, fmt.Errorf("%w: effective_from: %v", httpx.ErrValidation, err)
		}
		from = d
	}

	var (
		id       int64
		closedID int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.EmployeeExists(ctx, req.EmployeeID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrEmployeeNotFound
		}
		open, err := tx.OpenForUpdate(ctx, req.EmployeeID)
		if err != nil {
			return err
		}
		if open != nil {
			if !from.After(open.EffectiveFrom) {
				return ErrStartNotAfterOpen
			}
			if err := tx.Close(ctx, open.ID, from.AddDate(0, 0, -1)); err != nil {
				return err
			}
			closedID = open.ID
		}
		id, err = tx.Insert(ctx, Rate{
			EmployeeID:    req.EmployeeID,
			RoleTag:       req.RoleTag,
			DayRate:       req.DayRate,
			ShiftRate:     req.ShiftRate,
			OvertimeRate:  req.OvertimeRate,
			EffectiveFrom: from,
			Comment:       req.Comment,
			CreatedBy:     actorID,
		})
		if err != nil {
			return err
		}
		return tx.SyncEmployeeDayRate(ctx, req.EmployeeID, req.DayRate)
	})
	if err != nil {
		return nil, err
	}

	meta := map[string]any{"employee_id": req.EmployeeID, "day_rate": req.DayRate, "effective_from": from.Format(shared.DateLayout)}
	if closedID > 0 {
		meta["closed_rate_id"] = closedID
	}
	s.record(ctx, actorID, shared.AuditCreate, id, meta)
	return s.repo.Get(ctx, id)
}

// Update edits a rate without touching its interval.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest, actorID int64) (*Rate, error) {
	if req.DayRate != nil && *req.DayRate <= 0 {
		return nil, ErrInvalidDayRate
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Update(ctx, id, Changes{
			RoleTag:      req.RoleTag,
			DayRate:      req.DayRate,
			ShiftRate:    req.ShiftRate,
			OvertimeRate: req.OvertimeRate,
			Comment:      req.Comment,
		})
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, shared.AuditUpdate, id, nil)
	return s.repo.Get(ctx, id)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "employee_rate", EntityID: shared.EntityRef(id), Meta: meta})
	if err != nil {
		s.logger.Warn("audit rate", slog.String("action", action), slog.Int64("rate_id", id), slog.Any("error", err))
	}
	if s.stats == nil {
		return
	}
	if err := s.stats.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate payroll stats", slog.Any("error", err))
	}
}
