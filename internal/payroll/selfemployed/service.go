package selfemployed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opscrm/opscrm/internal/platform/httpx"
	"github.com/opscrm/opscrm/internal/shared"
)

// Service manages self-employed profiles.
type Service struct {
	repo   Repository
	audit  shared.Auditor
	logger *slog.Logger
}

// NewService creates a new service.
func NewService(repo Repository, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// List returns profiles matching the filter, ordered by name.
func (s *Service) List(ctx context.Context, filter Filter) ([]Profile, error) {
	return s.repo.List(ctx, filter)
}

func parseOptionalDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := shared.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", httpx.ErrValidation, field, err)
	}
	return &d, nil
}

func parseOptionalDatePtr(field string, raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	return parseOptionalDate(field, *raw)
}

// Create stores a profile. A linked employee is flagged self-employed and
// receives the profile INN.
func (s *Service) Create(ctx context.Context, req CreateRequest, actorID int64) (*Profile, error) {
	if err := ValidateINN(req.INN); err != nil {
		return nil, err
	}
	p := Profile{
		EmployeeID:     req.EmployeeID,
		FullName:       req.FullName,
		INN:            req.INN,
		Phone:          req.Phone,
		Email:          req.Email,
		BankName:       req.BankName,
		BIK:            req.BIK,
		CorrAccount:    req.CorrAccount,
		AccountNumber:  req.AccountNumber,
		CardNumber:     req.CardNumber,
		NPDStatus:      req.NPDStatus,
		ContractNumber: req.ContractNumber,
		Comment:        req.Comment,
		IsActive:       true,
	}
	if p.NPDStatus == "" {
		p.NPDStatus = NPDActive
	}
	var err error
	if p.NPDRegisteredAt, err = parseOptionalDate("npd_registered_at", req.NPDRegisteredAt); err != nil {
		return nil, err
	}
	if p.ContractDate, err = parseOptionalDate("contract_date", req.ContractDate); err != nil {
		return nil, err
	}
	if p.ContractEndDate, err = parseOptionalDate("contract_end_date", req.ContractEndDate); err != nil {
		return nil, err
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if p.EmployeeID != nil {
			exists, err := tx.EmployeeExists(ctx, *p.EmployeeID)
			if err != nil {
				return err
			}
			if !exists {
				return ErrEmployeeNotFound
			}
		}
		var err error
		if id, err = tx.Insert(ctx, p); err != nil {
			return err
		}
		if p.EmployeeID != nil {
			return tx.LinkEmployee(ctx, *p.EmployeeID, p.INN)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, shared.AuditCreate, id)
	return s.repo.Get(ctx, id)
}

// Update applies a partial change and re-validates the INN.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest, actorID int64) (*Profile, error) {
	if req.INN != nil {
		if err := ValidateINN(*req.INN); err != nil {
			return nil, err
		}
	}
	c := Changes{
		EmployeeID:     req.EmployeeID,
		FullName:       req.FullName,
		INN:            req.INN,
		Phone:          req.Phone,
		Email:          req.Email,
		BankName:       req.BankName,
		BIK:            req.BIK,
		CorrAccount:    req.CorrAccount,
		AccountNumber:  req.AccountNumber,
		CardNumber:     req.CardNumber,
		NPDStatus:      req.NPDStatus,
		ContractNumber: req.ContractNumber,
		Comment:        req.Comment,
		IsActive:       req.IsActive,
	}
	var err error
	if c.NPDRegisteredAt, err = parseOptionalDatePtr("npd_registered_at", req.NPDRegisteredAt); err != nil {
		return nil, err
	}
	if c.ContractDate, err = parseOptionalDatePtr("contract_date", req.ContractDate); err != nil {
		return nil, err
	}
	if c.ContractEndDate, err = parseOptionalDatePtr("contract_end_date", req.ContractEndDate); err != nil {
		return nil, err
	}

	var updated *Profile
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if c.EmployeeID != nil {
			exists, err := tx.EmployeeExists(ctx, *c.EmployeeID)
			if err != nil {
				return err
			}
			if !exists {
				return ErrEmployeeNotFound
			}
		}
		p, err := tx.Update(ctx, id, c)
		if err != nil {
			return err
		}
		if p.EmployeeID != nil && (c.EmployeeID != nil || c.INN != nil) {
			if err := tx.LinkEmployee(ctx, *p.EmployeeID, p.INN); err != nil {
				return err
			}
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, shared.AuditUpdate, id)
	return updated, nil
}

// Payments returns the payment history of the profile's employee and the paid total.
func (s *Service) Payments(ctx context.Context, id int64) (PaymentsResponse, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return PaymentsResponse{}, err
	}
	if p.EmployeeID == nil {
		return PaymentsResponse{Payments: []PaymentRecord{}}, nil
	}
	records, err := s.repo.PaymentHistory(ctx, *p.EmployeeID)
	if err != nil {
		return PaymentsResponse{}, err
	}
	return PaymentsResponse{Payments: records, TotalPaid: TotalPaid(records)}, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64) {
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "self_employed", EntityID: shared.EntityRef(id)})
	if err != nil {
		s.logger.Warn("audit self-employed", slog.String("action", action), slog.Int64("id", id), slog.Any("error", err))
	}
}
