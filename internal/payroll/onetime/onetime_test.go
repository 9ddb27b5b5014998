package onetime

import (
	"context"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/opscrm/opscrm/internal/auth"
	"github.com/opscrm/opscrm/internal/notify"
	"github.com/opscrm/opscrm/internal/payroll/registry"
	"github.com/opscrm/opscrm/internal/platform/httpx"
	"github.com/opscrm/opscrm/internal/shared"
)

type memoryOneTimeRepo struct {
	mu            sync.Mutex
	payments      map[int64]Payment
	employees     map[int64]Employee
	banking       map[int64]registry.Banking
	registry      []registry.Entry
	notifications []notify.Request
	nextID        int64
}

func newMemoryOneTimeRepo() *memoryOneTimeRepo {
	return &memoryOneTimeRepo{
		payments:  map[int64]Payment{},
		employees: map[int64]Employee{101: {FIO: "Иванов И.И."}, 102: {FIO: "Петров П.П.", IsSelfEmployed: true}},
		banking:   map[int64]registry.Banking{101: {INN: "500100732259", AccountNumber: "40817810000000000001"}},
	}
}

func (m *memoryOneTimeRepo) List(_ context.Context, f ListFilter) ([]Payment, int, error) {
	var out []Payment
	for _, p := range m.payments {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.RequestedBy > 0 && p.RequestedBy != f.RequestedBy {
			continue
		}
		if f.PaymentType != "" && p.PaymentType != f.PaymentType {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Payment) int { return int(b.ID - a.ID) })
	return out, len(out), nil
}

func (m *memoryOneTimeRepo) Get(_ context.Context, id int64) (*Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *memoryOneTimeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payments, reg, notes := maps.Clone(m.payments), slices.Clone(m.registry), slices.Clone(m.notifications)
	if err := fn(ctx, m); err != nil {
		m.payments, m.registry, m.notifications = payments, reg, notes
		return err
	}
	return nil
}

func (m *memoryOneTimeRepo) Employee(_ context.Context, id int64) (*Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memoryOneTimeRepo) Insert(_ context.Context, p Payment) (int64, error) {
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now()
	m.payments[p.ID] = p
	return p.ID, nil
}

func (m *memoryOneTimeRepo) GetForUpdate(ctx context.Context, id int64) (*Payment, error) {
	return m.Get(ctx, id)
}

func (m *memoryOneTimeRepo) Decide(_ context.Context, id int64, d Decision) error {
	p := m.payments[id]
	p.Status = d.Status
	if d.ApprovedBy != nil {
		now := time.Now()
		p.ApprovedBy, p.ApprovedAt = d.ApprovedBy, &now
	}
	if d.DirectorComment != nil {
		p.DirectorComment = *d.DirectorComment
	}
	m.payments[id] = p
	return nil
}

func (m *memoryOneTimeRepo) MarkPaid(_ context.Context, id int64) error {
	p := m.payments[id]
	now := time.Now()
	p.Status, p.PaidAt = StatusPaid, &now
	m.payments[id] = p
	return nil
}

func (m *memoryOneTimeRepo) Banking(_ context.Context, employeeID int64, _ bool) (registry.Banking, error) {
	return m.banking[employeeID], nil
}

func (m *memoryOneTimeRepo) InsertPayment(_ context.Context, e registry.Entry) (int64, error) {
	e.ID = int64(len(m.registry) + 1)
	m.registry = append(m.registry, e)
	return e.ID, nil
}

func (m *memoryOneTimeRepo) SettleRegistry(_ context.Context, oneTimeID int64) (int64, error) {
	var n int64
	for i, e := range m.registry {
		if e.OneTimeID != nil && *e.OneTimeID == oneTimeID && e.Status.CanTransitionTo(registry.StatusPaid) {
			m.registry[i].Status = registry.StatusPaid
			n++
		}
	}
	return n, nil
}

func (m *memoryOneTimeRepo) DirectorIDs(context.Context) ([]int64, error) {
	return []int64{900, 901}, nil
}

func (m *memoryOneTimeRepo) Notify(_ context.Context, reqs ...notify.Request) ([]int64, error) {
	ids := make([]int64, 0, len(reqs))
	for _, r := range reqs {
		m.notifications = append(m.notifications, r)
		ids = append(ids, int64(len(m.notifications)))
	}
	return ids, nil
}

type memoryIdempotency struct {
	keys map[string]struct{}
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	if _, ok := m.keys[module+"/"+key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+"/"+key] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key, module string) error {
	delete(m.keys, module+"/"+key)
	return nil
}

var (
	pm       = auth.Principal{UserID: 10, Name: "Смирнов", Role: auth.RolePM}
	director = auth.Principal{UserID: 900, Name: "Директор", Role: auth.RoleDirectorComm}
	buh      = auth.Principal{UserID: 950, Name: "Бухгалтер", Role: auth.RoleAccountant}
)

func newTestService() (*Service, *memoryOneTimeRepo, *memoryIdempotency) {
	repo := newMemoryOneTimeRepo()
	idem := &memoryIdempotency{keys: map[string]struct{}{}}
	return NewService(repo, idem, nil, nil, nil, nil), repo, idem
}

func TestCreateSnapshotsAndNotifies(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateRequest{EmployeeID: 101, Amount: 1500, Reason: "такси до объекта"}, "", pm)
	require.NoError(t, err)
	require.Equal(t, StatusPending, p.Status)
	require.Equal(t, "Иванов И.И.", p.EmployeeName)
	require.Equal(t, registry.MethodCard, p.PaymentMethod)
	require.Equal(t, registry.TypeOneTime, p.PaymentType)
	require.Equal(t, pm.UserID, p.RequestedBy)

	require.Len(t, repo.notifications, 2)
	n := repo.notifications[0]
	require.Equal(t, notify.KindOneTimePayment, n.Kind)
	require.Contains(t, n.Message, "Смирнов")
	require.Contains(t, n.Message, "такси до объекта")

	unknown, err := svc.Create(ctx, CreateRequest{EmployeeID: 404, Amount: 10, Reason: "чек", PaymentType: registry.TypeFuel}, "", pm)
	require.NoError(t, err)
	require.Equal(t, UnknownEmployee, unknown.EmployeeName)
	require.Equal(t, registry.TypeFuel, unknown.PaymentType)

	_, err = svc.Create(ctx, CreateRequest{EmployeeID: 101, Amount: 0, Reason: "x"}, "", pm)
	require.ErrorIs(t, err, httpx.ErrValidation)
	_, err = svc.Create(ctx, CreateRequest{EmployeeID: 101, Amount: 5, Reason: "   "}, "", pm)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCreateHonoursIdempotencyKey(t *testing.T) {
	svc, repo, idem := newTestService()
	ctx := context.Background()
	req := CreateRequest{EmployeeID: 101, Amount: 700, Reason: "обед бригады", PaymentType: registry.TypeMeal}

	_, err := svc.Create(ctx, req, "req-1", pm)
	require.NoError(t, err)
	_, err = svc.Create(ctx, req, "req-1", pm)
	require.ErrorIs(t, err, ErrReplayed)
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.Len(t, repo.payments, 1)
	require.Len(t, idem.keys, 1)
}

func TestApproveCreatesRegistryEntryAndPaySettlesIt(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	p, err := svc.Create(ctx, CreateRequest{EmployeeID: 101, Amount: 2500, Reason: "материалы", PaymentType: registry.TypeMaterial}, "", pm)
	require.NoError(t, err)

	_, err = svc.Pay(ctx, p.ID, buh)
	require.ErrorIs(t, err, ErrTransition)

	approved, err := svc.Approve(ctx, p.ID, "ок", director)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, director.UserID, *approved.ApprovedBy)
	require.Len(t, repo.registry, 1)
	entry := repo.registry[0]
	require.Equal(t, p.ID, *entry.OneTimeID)
	require.Equal(t, 2500.0, entry.Amount)
	require.Equal(t, registry.TypeMaterial, entry.PaymentType)
	require.Equal(t, registry.StatusPending, entry.Status)
	require.Equal(t, "500100732259", entry.INN)
	last := repo.notifications[len(repo.notifications)-1]
	require.Equal(t, pm.UserID, last.UserID)
	require.Equal(t, notify.KindOneTimeApproved, last.Kind)

	_, err = svc.Approve(ctx, p.ID, "", director)
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.Len(t, repo.registry, 1)

	paid, err := svc.Pay(ctx, p.ID, buh)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	require.Equal(t, registry.StatusPaid, repo.registry[0].Status)
	require.Equal(t, notify.KindOneTimePaid, repo.notifications[len(repo.notifications)-1].Kind)

	_, err = svc.Pay(ctx, p.ID, buh)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestRejectRequiresComment(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	p, err := svc.Create(ctx, CreateRequest{EmployeeID: 102, Amount: 300, Reason: "бензин"}, "", pm)
	require.NoError(t, err)

	_, err = svc.Reject(ctx, p.ID, "", director)
	require.ErrorIs(t, err, ErrCommentRequired)

	rejected, err := svc.Reject(ctx, p.ID, "нет чека", director)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "нет чека", rejected.DirectorComment)
	require.Empty(t, repo.registry)
	require.Contains(t, repo.notifications[len(repo.notifications)-1].Message, "нет чека")

	_, err = svc.Approve(ctx, p.ID, "", director)
	require.ErrorIs(t, err, ErrTransition)
}

func TestListScopesProjectManagers(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateRequest{EmployeeID: 101, Amount: 100, Reason: "a"}, "", pm)
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRequest{EmployeeID: 101, Amount: 200, Reason: "b"}, "", director)
	require.NoError(t, err)

	_, total, err := svc.List(ctx, ListFilter{}, pm)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	_, total, err = svc.List(ctx, ListFilter{}, buh)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	_, _, err = svc.List(ctx, ListFilter{Status: "lost"}, buh)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestHandlerRoutes(t *testing.T) {
	svc, _, _ := newTestService()
	v := auth.NewVerifier("secret", "")
	mw := auth.Middleware{Verifier: v}
	r := chi.NewRouter()
	r.Use(mw.Authenticate)
	NewHandler(nil, svc, mw).MountRoutes(r)

	do := func(p auth.Principal, method, target, body string, headers ...string) *httptest.ResponseRecorder {
		token, err := v.Issue(p, time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := do(pm, http.MethodPost, "/one-time", `{"employee_id":101,"amount":900,"reason":"такси","payment_type":"taxi"}`, shared.IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(pm, http.MethodPost, "/one-time", `{"employee_id":101,"amount":900,"reason":"такси","payment_type":"taxi"}`, shared.IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusConflict, rec.Code)
	rec = do(pm, http.MethodPost, "/one-time", `{"employee_id":101,"amount":900,"reason":"такси","payment_type":"yacht"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(pm, http.MethodPut, "/one-time/1/approve", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(director, http.MethodPut, "/one-time/1/reject", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(director, http.MethodPut, "/one-time/1/approve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(buh, http.MethodPut, "/one-time/1/pay", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"paid"`)
	rec = do(buh, http.MethodPut, "/one-time/99/pay", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(pm, http.MethodGet, "/one-time?status=paid", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":1`)
}
