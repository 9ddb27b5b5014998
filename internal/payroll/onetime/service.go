package onetime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opscrm/opscrm/internal/auth"
	"github.com/opscrm/opscrm/internal/notify"
	"github.com/opscrm/opscrm/internal/payroll/registry"
	"github.com/opscrm/opscrm/internal/platform/httpx"
	"github.com/opscrm/opscrm/internal/shared"
)

const idempotencyModule = "payroll.one_time"

// Service runs the one-time payment workflow.
type Service struct {
	repo        Repository
	idempotency shared.Idempotency
	approvals   shared.Approvals
	audit       shared.Auditor
	publisher   notify.Publisher
	logger      *slog.Logger
}

// NewService constructs the service. A nil idempotency store disables key checks.
func NewService(repo Repository, idem shared.Idempotency, approvals shared.Approvals, audit shared.Auditor, publisher notify.Publisher, logger *slog.Logger) *Service {
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
	return &Service{repo: repo, idempotency: idem, approvals: approvals, audit: audit, publisher: publisher, logger: logger}
}

// List returns a page of requests. Project managers see only their own.
func (s *Service) List(ctx context.Context, filter ListFilter, actor auth.Principal) ([]Payment, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, filter.Status)
	}
	if actor.Role.IsProjectManager() {
		filter.RequestedBy = actor.UserID
	}
	w := shared.NewWindow(filter.Limit, filter.Offset)
	filter.Limit, filter.Offset = w.Limit, w.Offset
	return s.repo.List(ctx, filter)
}

// Create files a pending request and asks directors to decide. A non-empty
// key makes the call idempotent: a replay fails with ErrReplayed.
func (s *Service) Create(ctx context.Context, req CreateRequest, key string, actor auth.Principal) (*Payment, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", httpx.ErrValidation)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", httpx.ErrValidation)
	}
	key = strings.TrimSpace(key)
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, ErrReplayed
			}
			return nil, err
		}
	}

	p := Payment{
		EmployeeID:    req.EmployeeID,
		WorkID:        req.WorkID,
		Amount:        req.Amount,
		Reason:        reason,
		PaymentMethod: req.PaymentMethod,
		PaymentType:   req.PaymentType,
		Comment:       req.Comment,
		ReceiptURL:    req.ReceiptURL,
		Status:        StatusPending,
		RequestedBy:   actor.UserID,
	}
	if p.PaymentMethod == "" {
		p.PaymentMethod = registry.MethodCard
	}
	if p.PaymentType == "" {
		p.PaymentType = registry.TypeOneTime
	}

	var ids []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		emp, err := tx.Employee(ctx, req.EmployeeID)
		if err != nil {
			return err
		}
		p.EmployeeName = UnknownEmployee
		if emp != nil && emp.FIO != "" {
			p.EmployeeName = emp.FIO
		}
		if p.ID, err = tx.Insert(ctx, p); err != nil {
			return err
		}
		directors, err := tx.DirectorIDs(ctx)
		if err != nil {
			return err
		}
		base := notify.OneTimeRequested(p.ID, actor.Name, p.EmployeeName, p.Amount, p.Reason)
		ids, err = tx.Notify(ctx, notify.Fanout(directors, base)...)
		return err
	})
	if err != nil {
		if key != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, key, idempotencyModule); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return nil, err
	}
	s.record(ctx, actor.UserID, shared.AuditCreate, p.ID, map[string]any{"amount": p.Amount, "employee_id": p.EmployeeID})
	notify.Dispatch(ctx, s.publisher, s.logger, ids)
	return s.repo.Get(ctx, p.ID)
}

// Approve accepts a pending request and creates its registry entry.
func (s *Service) Approve(ctx context.Context, id int64, comment string, actor auth.Principal) (*Payment, error) {
	comment = strings.TrimSpace(comment)
	var (
		ids     []int64
		entryID int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := s.lock(ctx, tx, id, StatusApproved)
		if err != nil {
			return err
		}
		approver := actor.UserID
		d := Decision{Status: StatusApproved, ApprovedBy: &approver}
		if comment != "" {
			d.DirectorComment = &comment
		}
		if err := tx.Decide(ctx, id, d); err != nil {
			return err
		}
		emp, err := tx.Employee(ctx, p.EmployeeID)
		if err != nil {
			return err
		}
		banking, err := tx.Banking(ctx, p.EmployeeID, emp != nil && emp.IsSelfEmployed)
		if err != nil {
			return err
		}
		oneTimeID := p.ID
		entryID, err = tx.InsertPayment(ctx, registry.Entry{
			OneTimeID:     &oneTimeID,
			WorkID:        p.WorkID,
			EmployeeID:    p.EmployeeID,
			EmployeeName:  p.EmployeeName,
			Amount:        p.Amount,
			PaymentType:   p.PaymentType,
			PaymentMethod: p.PaymentMethod,
			Status:        registry.StatusPending,
			Comment:       p.Reason,
			CreatedBy:     actor.UserID,
			Banking:       banking,
		})
		if err != nil {
			return err
		}
		ids, err = tx.Notify(ctx, requesterRequest(p, notify.OneTimeDecision(notify.KindOneTimeApproved, id, p.EmployeeName, p.Amount, comment)))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.after(ctx, actor.UserID, id, shared.ApprovalApprove, comment, ids, map[string]any{"registry_id": entryID})
	return s.repo.Get(ctx, id)
}

// Reject declines a pending request. The comment is mandatory.
func (s *Service) Reject(ctx context.Context, id int64, comment string, actor auth.Principal) (*Payment, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, ErrCommentRequired
	}
	var ids []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := s.lock(ctx, tx, id, StatusRejected)
		if err != nil {
			return err
		}
		if err := tx.Decide(ctx, id, Decision{Status: StatusRejected, DirectorComment: &comment}); err != nil {
			return err
		}
		ids, err = tx.Notify(ctx, requesterRequest(p, notify.OneTimeDecision(notify.KindOneTimeRejected, id, p.EmployeeName, p.Amount, comment)))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.after(ctx, actor.UserID, id, shared.ApprovalReject, comment, ids, nil)
	return s.repo.Get(ctx, id)
}

// Pay marks an approved request paid together with its registry entry.
func (s *Service) Pay(ctx context.Context, id int64, actor auth.Principal) (*Payment, error) {
	var (
		ids     []int64
		settled int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := s.lock(ctx, tx, id, StatusPaid)
		if err != nil {
			return err
		}
		if err := tx.MarkPaid(ctx, id); err != nil {
			return err
		}
		if settled, err = tx.SettleRegistry(ctx, id); err != nil {
			return err
		}
		ids, err = tx.Notify(ctx, requesterRequest(p, notify.OneTimeDecision(notify.KindOneTimePaid, id, p.EmployeeName, p.Amount, "")))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.after(ctx, actor.UserID, id, shared.ApprovalPay, "", ids, map[string]any{"registry_settled": settled})
	return s.repo.Get(ctx, id)
}

func (s *Service) lock(ctx context.Context, tx TxRepository, id int64, next Status) (*Payment, error) {
	p, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrTransition, p.Status, next)
	}
	return p, nil
}

func requesterRequest(p *Payment, req notify.Request) notify.Request {
	req.UserID = p.RequestedBy
	return req
}

func (s *Service) after(ctx context.Context, actorID, id int64, action shared.ApprovalAction, note string, ids []int64, meta map[string]any) {
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  shared.ModuleOneTimePayment,
		RefID:   id,
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
	if err != nil {
		s.logger.Warn("record one-time approval", slog.Int64("one_time_id", id), slog.Any("error", err))
	}
	s.record(ctx, actorID, strings.ToLower(string(action)), id, meta)
	notify.Dispatch(ctx, s.publisher, s.logger, ids)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "one_time_payment", EntityID: shared.EntityRef(id), Meta: meta})
	if err != nil {
		s.logger.Warn("audit one-time payment", slog.String("action", action), slog.Int64("one_time_id", id), slog.Any("error", err))
	}
}
