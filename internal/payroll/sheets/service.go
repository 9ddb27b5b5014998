package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opscrm/opscrm/internal/auth"
	"github.com/opscrm/opscrm/internal/notify"
	"github.com/opscrm/opscrm/internal/payroll/calc"
	"github.com/opscrm/opscrm/internal/platform/httpx"
	"github.com/opscrm/opscrm/internal/shared"
)

// Invalidator drops cached aggregates that depend on sheet state.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service runs the sheet lifecycle.
type Service struct {
	repo      Repository
	approvals shared.Approvals
	audit     shared.Auditor
	publisher notify.Publisher
	stats     Invalidator
	logger    *slog.Logger
	newBatch  func() uuid.UUID
	now       func() time.Time
}

// NewService constructs the sheet service. Nil collaborators fall back to no-ops.
func NewService(repo Repository, approvals shared.Approvals, audit shared.Auditor, publisher notify.Publisher, stats Invalidator, logger *slog.Logger) *Service {
	if approvals == nil {
		approvals = shared.NopApprovals{}
	}
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		approvals: approvals,
		audit:     audit,
		publisher: publisher,
		stats:     stats,
		logger:    logger,
		newBatch:  uuid.New,
		now:       time.Now,
	}
}

// List returns a page of sheets visible to the scope.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Sheet, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, filter.Status)
	}
	w := shared.NewWindow(filter.Limit, filter.Offset)
	filter.Limit, filter.Offset = w.Limit, w.Offset
	return s.repo.List(ctx, filter)
}

// Get returns a sheet with its items and materialised payments.
func (s *Service) Get(ctx context.Context, id int64, scope Scope) (*Detail, error) {
	sheet, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(sheet) {
		return nil, ErrOutOfScope
	}
	items, err := s.repo.Items(ctx, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.Payments(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Sheet: sheet, Items: items, Payments: payments}, nil
}

// Create opens a draft sheet.
func (s *Service) Create(ctx context.Context, req CreateRequest, actor auth.Principal) (*Sheet, error) {
	period, err := parsePeriod(req.PeriodFrom, req.PeriodTo)
	if err != nil {
		return nil, err
	}
	scope := ScopeFor(actor)
	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var work *Work
		if req.WorkID != nil {
			work, err = tx.Work(ctx, *req.WorkID)
			if err != nil {
				return err
			}
			if !scope.AllowsWork(work) {
				return fmt.Errorf("%w: work %d is managed by another project manager", httpx.ErrForbidden, work.ID)
			}
		}
		title := strings.TrimSpace(req.Title)
		if title == "" {
			title = DefaultTitle(work, period.From, period.To)
		}
		id, err = tx.InsertSheet(ctx, Sheet{
			WorkID:     req.WorkID,
			Title:      title,
			PeriodFrom: period.From,
			PeriodTo:   period.To,
			Comment:    req.Comment,
			CreatedBy:  actor.UserID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor.UserID, shared.AuditCreate, id, map[string]any{
		"period_from": period.From.Format(shared.DateLayout),
		"period_to":   period.To.Format(shared.DateLayout),
	})
	return s.repo.Get(ctx, id)
}

// Update edits the header of a draft or rework sheet.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest, actor auth.Principal) (*Sheet, error) {
	var c Changes
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title must not be empty", httpx.ErrValidation)
		}
		c.Title = &title
	}
	if req.Comment != nil {
		c.Comment = req.Comment
	}
	from, err := optionalDate("period_from", req.PeriodFrom)
	if err != nil {
		return nil, err
	}
	to, err := optionalDate("period_to", req.PeriodTo)
	if err != nil {
		return nil, err
	}
	c.PeriodFrom, c.PeriodTo = from, to

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sheet, err := lockEditable(ctx, tx, id, ScopeFor(actor))
		if err != nil {
			return err
		}
		newFrom, newTo := sheet.PeriodFrom, sheet.PeriodTo
		if from != nil {
			newFrom = *from
		}
		if to != nil {
			newTo = *to
		}
		if newFrom.After(newTo) {
			return ErrInvalidPeriod
		}
		return tx.UpdateSheet(ctx, id, c)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor.UserID, shared.AuditUpdate, id, nil)
	return s.repo.Get(ctx, id)
}

// Submit recomputes totals, moves the sheet to pending and asks directors for approval.
func (s *Service) Submit(ctx context.Context, id int64, actor auth.Principal) (*Sheet, error) {
	var (
		ids    []int64
		totals calc.Totals
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sheet, err := tx.SheetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !ScopeFor(actor).Allows(sheet) {
			return ErrOutOfScope
		}
		next, err := sheet.Status.Next(OpSubmit)
		if err != nil {
			return err
		}
		if totals, err = refreshTotals(ctx, tx, id); err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, id, StatusChange{Status: next}); err != nil {
			return err
		}
		directors, err := tx.DirectorIDs(ctx)
		if err != nil {
			return err
		}
		ids, err = tx.Notify(ctx, notify.Fanout(directors, notify.SheetSubmitted(id, sheet.Title, totals.TotalPayout))...)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, actor.UserID, id, shared.ApprovalSubmit, "", ids, map[string]any{"total_payout": totals.TotalPayout})
	return s.repo.Get(ctx, id)
}

// Approve stamps the approver and notifies the creator.
func (s *Service) Approve(ctx context.Context, id int64, actor auth.Principal) (*Sheet, error) {
	var ids []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sheet, err := tx.SheetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := sheet.Status.Next(OpApprove)
		if err != nil {
			return err
		}
		approver := actor.UserID
		if err := tx.SetStatus(ctx, id, StatusChange{Status: next, ApprovedBy: &approver}); err != nil {
			return err
		}
		ids, err = tx.Notify(ctx, creatorRequest(sheet, notify.SheetDecision(notify.KindPayrollApproved, id, sheet.Title, "")))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, actor.UserID, id, shared.ApprovalApprove, "", ids, nil)
	return s.repo.Get(ctx, id)
}

// Rework returns a pending sheet to its creator with a mandatory comment.
func (s *Service) Rework(ctx context.Context, id int64, comment string, actor auth.Principal) (*Sheet, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, ErrCommentRequired
	}
	var ids []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sheet, err := tx.SheetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := sheet.Status.Next(OpRework)
		if err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, id, StatusChange{Status: next, DirectorComment: &comment}); err != nil {
			return err
		}
		ids, err = tx.Notify(ctx, creatorRequest(sheet, notify.SheetDecision(notify.KindPayrollRework, id, sheet.Title, comment)))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, actor.UserID, id, shared.ApprovalRework, comment, ids, nil)
	return s.repo.Get(ctx, id)
}

// Pay marks an approved sheet paid and materialises its payments.
func (s *Service) Pay(ctx context.Context, id int64, actor auth.Principal) (*PayResult, error) {
	var (
		ids     []int64
		created int
		batch   = s.newBatch()
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sheet, err := tx.SheetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := sheet.Status.Next(OpPay)
		if err != nil {
			return err
		}
		payer := actor.UserID
		if err := tx.SetStatus(ctx, id, StatusChange{Status: next, PaidBy: &payer}); err != nil {
			return err
		}
		items, err := tx.Items(ctx, id)
		if err != nil {
			return err
		}
		created, err = materialize(ctx, tx, sheet, items, actor.UserID, batch)
		if err != nil {
			return err
		}
		detail := fmt.Sprintf("создано выплат: %d", created)
		ids, err = tx.Notify(ctx, creatorRequest(sheet, notify.SheetDecision(notify.KindPayrollPaid, id, sheet.Title, detail)))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, actor.UserID, id, shared.ApprovalPay, "", ids, map[string]any{
		"payments_created": created,
		"batch_id":         batch.String(),
	})
	sheet, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PayResult{Sheet: sheet, PaymentsCreated: created}, nil
}

// Delete removes a draft sheet with its items.
func (s *Service) Delete(ctx context.Context, id int64, actor auth.Principal) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sheet, err := tx.SheetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !ScopeFor(actor).Allows(sheet) {
			return ErrOutOfScope
		}
		if !sheet.Status.Deletable() {
			return ErrNotDeletable
		}
		return tx.DeleteSheet(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor.UserID, shared.AuditDelete, id, nil)
	return nil
}

// lockEditable re-reads the sheet FOR UPDATE and checks scope and status.
func lockEditable(ctx context.Context, tx TxRepository, id int64, scope Scope) (*Sheet, error) {
	sheet, err := tx.SheetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(sheet) {
		return nil, ErrOutOfScope
	}
	if !sheet.Status.Editable() {
		return nil, ErrNotEditable
	}
	return sheet, nil
}

// refreshTotals rewrites the sheet aggregate from its current items.
func refreshTotals(ctx context.Context, tx TxRepository, sheetID int64) (calc.Totals, error) {
	items, err := tx.Items(ctx, sheetID)
	if err != nil {
		return calc.Totals{}, err
	}
	totals := calc.Aggregate(Lines(items))
	if err := tx.SetTotals(ctx, sheetID, totals); err != nil {
		return calc.Totals{}, err
	}
	return totals, nil
}

func creatorRequest(sheet *Sheet, req notify.Request) notify.Request {
	req.UserID = sheet.CreatedBy
	return req
}

func parsePeriod(fromRaw, toRaw string) (shared.Period, error) {
	from, err := shared.ParseDate(fromRaw)
	if err != nil {
		return shared.Period{}, fmt.Errorf("%w: period_from: %v", httpx.ErrValidation, err)
	}
	to, err := shared.ParseDate(toRaw)
	if err != nil {
		return shared.Period{}, fmt.Errorf("%w: period_to: %v", httpx.ErrValidation, err)
	}
	p, err := shared.NewPeriod(from, to)
	if err != nil {
		return shared.Period{}, ErrInvalidPeriod
	}
	return p, nil
}

func optionalDate(field string, raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := shared.ParseDate(*raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", httpx.ErrValidation, field, err)
	}
	return &d, nil
}

// afterTransition runs the post-commit side effects of an approval step.
func (s *Service) afterTransition(ctx context.Context, actorID, id int64, action shared.ApprovalAction, note string, ids []int64, meta map[string]any) {
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  shared.ModulePayrollSheet,
		RefID:   id,
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
	if err != nil {
		s.logger.Warn("record sheet approval", slog.Int64("sheet_id", id), slog.String("action", string(action)), slog.Any("error", err))
	}
	s.record(ctx, actorID, strings.ToLower(string(action)), id, meta)
	notify.Dispatch(ctx, s.publisher, s.logger, ids)
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.stats == nil {
		return
	}
	if err := s.stats.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate payroll stats", slog.Any("error", err))
	}
}

// record runs after every committed sheet mutation: it writes the audit row
// and drops cached stats, which count drafts too.
func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "payroll_sheet", EntityID: shared.EntityRef(id), Meta: meta})
	if err != nil {
		s.logger.Warn("audit sheet", slog.String("action", action), slog.Int64("sheet_id", id), slog.Any("error", err))
	}
	s.invalidateStats(ctx)
}
