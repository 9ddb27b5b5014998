package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/opscrm/opscrm/internal/shared"
)

// Service manages registry listings, status transitions and exports.
type Service struct {
	repo    Repository
	audit   shared.Auditor
	logger  *slog.Logger
	orgName string
	now     func() time.Time
}

// NewService creates a new service.
func NewService(repo Repository, audit shared.Auditor, logger *slog.Logger, orgName string) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, orgName: orgName, now: time.Now}
}

// List returns a page of entries and the unpaged total.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	w := shared.NewWindow(filter.Limit, filter.Offset)
	filter.Limit, filter.Offset = w.Limit, w.Offset
	return s.repo.List(ctx, filter)
}

// UpdateStatus moves an entry along the registry transition table.
func (s *Service) UpdateStatus(ctx context.Context, id int64, req StatusRequest, actorID int64) (*Entry, error) {
	if !req.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	var from Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(req.Status) {
			return ErrTransition
		}
		from = current.Status
		return tx.UpdateStatus(ctx, id, StatusChange{
			Status:             req.Status,
			BankRef:            req.BankRef,
			PaymentOrderNumber: req.PaymentOrderNumber,
			Comment:            req.Comment,
		})
	})
	if err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   shared.AuditStatus,
		Entity:   "payment_registry",
		EntityID: shared.EntityRef(id),
		Meta:     map[string]any{"from": from, "to": req.Status},
	}); err != nil {
		s.logger.Warn("audit payment status", slog.Int64("payment_id", id), slog.Any("error", err))
	}
	return s.repo.Get(ctx, id)
}

// Export renders the sheet's entries, or every open entry when sheetID is zero.
func (s *Service) Export(ctx context.Context, sheetID int64) (*excelize.File, string, error) {
	var header *SheetHeader
	if sheetID > 0 {
		h, err := s.repo.SheetHeader(ctx, sheetID)
		if err != nil {
			return nil, "", err
		}
		header = h
	}
	rows, err := s.repo.ExportRows(ctx, sheetID)
	if err != nil {
		return nil, "", err
	}
	now := s.now()
	f, err := BuildWorkbook(ExportInput{OrgName: s.orgName, Sheet: header, Rows: rows, GeneratedAt: now})
	if err != nil {
		return nil, "", err
	}
	return f, ExportFilename(sheetID, now), nil
}
