package sheets

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opscrm/opscrm/internal/auth"
	"github.com/opscrm/opscrm/internal/notify"
	"github.com/opscrm/opscrm/internal/payroll/calc"
	"github.com/opscrm/opscrm/internal/payroll/registry"
	"github.com/opscrm/opscrm/internal/platform/httpx"
	"github.com/opscrm/opscrm/internal/shared"
)

var errLookup = errors.New("relation employee_plan does not exist")

type memorySheetRepo struct {
	mu sync.Mutex

	sheets      map[int64]Sheet
	items       map[int64]Item
	works       map[int64]Work
	employees   map[int64]Employee
	banking     map[int64]registry.Banking
	assignments []Assignment
	attendance  map[int64]int
	rates       map[int64]float64
	bonuses     map[int64]float64
	directors   []int64

	payments      []registry.Entry
	expenses      []Expense
	notifications []notify.Request

	failLookups bool
	failInsert  bool
	nextID      int64
}

func newMemorySheetRepo() *memorySheetRepo {
	return &memorySheetRepo{
		sheets:     map[int64]Sheet{},
		items:      map[int64]Item{},
		works:      map[int64]Work{},
		employees:  map[int64]Employee{},
		banking:    map[int64]registry.Banking{},
		attendance: map[int64]int{},
		rates:      map[int64]float64{},
		bonuses:    map[int64]float64{},
		directors:  []int64{900, 901},
	}
}

func (m *memorySheetRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memorySheetRepo) sheetView(s Sheet) *Sheet {
	if s.WorkID != nil {
		if w, ok := m.works[*s.WorkID]; ok {
			s.WorkTitle, s.CustomerName, s.PMID = w.Title, w.CustomerName, w.PMID
		}
	}
	return &s
}

func (m *memorySheetRepo) List(_ context.Context, f ListFilter) ([]Sheet, int, error) {
	var out []Sheet
	for _, s := range m.sheets {
		view := m.sheetView(s)
		if f.Status != "" && view.Status != f.Status {
			continue
		}
		if f.WorkID > 0 && (view.WorkID == nil || *view.WorkID != f.WorkID) {
			continue
		}
		if !f.Scope.Allows(view) {
			continue
		}
		out = append(out, *view)
	}
	slices.SortFunc(out, func(a, b Sheet) int { return int(b.ID - a.ID) })
	total := len(out)
	if f.Offset < len(out) {
		out = out[f.Offset:min(len(out), f.Offset+f.Limit)]
	} else {
		out = nil
	}
	return out, total, nil
}

func (m *memorySheetRepo) Get(_ context.Context, id int64) (*Sheet, error) {
	s, ok := m.sheets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.sheetView(s), nil
}

func (m *memorySheetRepo) Items(_ context.Context, sheetID int64) ([]Item, error) {
	out := make([]Item, 0)
	for _, it := range m.items {
		if it.SheetID == sheetID {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, func(a, b Item) int { return int(a.ID - b.ID) })
	return out, nil
}

func (m *memorySheetRepo) Payments(_ context.Context, sheetID int64) ([]registry.Entry, error) {
	var out []registry.Entry
	for _, p := range m.payments {
		if p.SheetID != nil && *p.SheetID == sheetID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memorySheetRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sheets, items := maps.Clone(m.sheets), maps.Clone(m.items)
	payments, expenses, notes := slices.Clone(m.payments), slices.Clone(m.expenses), slices.Clone(m.notifications)
	if err := fn(ctx, m); err != nil {
		m.sheets, m.items = sheets, items
		m.payments, m.expenses, m.notifications = payments, expenses, notes
		return err
	}
	return nil
}

func (m *memorySheetRepo) Work(_ context.Context, id int64) (*Work, error) {
	w, ok := m.works[id]
	if !ok {
		return nil, ErrWorkNotFound
	}
	return &w, nil
}

func (m *memorySheetRepo) SheetForUpdate(ctx context.Context, id int64) (*Sheet, error) {
	return m.Get(ctx, id)
}

func (m *memorySheetRepo) InsertSheet(_ context.Context, s Sheet) (int64, error) {
	s.ID = m.id()
	s.Status = StatusDraft
	s.CreatedAt = time.Now()
	m.sheets[s.ID] = s
	return s.ID, nil
}

func (m *memorySheetRepo) UpdateSheet(_ context.Context, id int64, c Changes) error {
	s, ok := m.sheets[id]
	if !ok {
		return ErrNotFound
	}
	if c.Title != nil {
		s.Title = *c.Title
	}
	if c.PeriodFrom != nil {
		s.PeriodFrom = *c.PeriodFrom
	}
	if c.PeriodTo != nil {
		s.PeriodTo = *c.PeriodTo
	}
	if c.Comment != nil {
		s.Comment = *c.Comment
	}
	m.sheets[id] = s
	return nil
}

func (m *memorySheetRepo) SetStatus(_ context.Context, id int64, c StatusChange) error {
	s, ok := m.sheets[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	s.Status = c.Status
	if c.ApprovedBy != nil {
		s.ApprovedBy, s.ApprovedAt = c.ApprovedBy, &now
	}
	if c.PaidBy != nil {
		s.PaidBy, s.PaidAt = c.PaidBy, &now
	}
	if c.DirectorComment != nil {
		s.DirectorComment = *c.DirectorComment
	}
	m.sheets[id] = s
	return nil
}

func (m *memorySheetRepo) SetTotals(_ context.Context, id int64, t calc.Totals) error {
	s := m.sheets[id]
	s.Totals = t
	m.sheets[id] = s
	return nil
}

func (m *memorySheetRepo) DeleteSheet(_ context.Context, id int64) error {
	for itemID, it := range m.items {
		if it.SheetID == id {
			delete(m.items, itemID)
		}
	}
	delete(m.sheets, id)
	return nil
}

func (m *memorySheetRepo) ItemForUpdate(_ context.Context, id int64) (*Item, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	return &it, nil
}

func (m *memorySheetRepo) InsertItem(_ context.Context, it Item) (int64, error) {
	if m.failInsert {
		return 0, errors.New("insert failed")
	}
	it.ID = m.id()
	m.items[it.ID] = it
	return it.ID, nil
}

func (m *memorySheetRepo) UpdateItem(_ context.Context, it Item) error {
	if _, ok := m.items[it.ID]; !ok {
		return ErrItemNotFound
	}
	m.items[it.ID] = it
	return nil
}

func (m *memorySheetRepo) DeleteItem(_ context.Context, id int64) error {
	if _, ok := m.items[id]; !ok {
		return ErrItemNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memorySheetRepo) Employee(_ context.Context, id int64) (*Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return nil, ErrEmployeeNotFound
	}
	return &e, nil
}

func (m *memorySheetRepo) LatestRole(_ context.Context, employeeID, workID int64) (string, error) {
	role := ""
	for _, a := range m.assignments {
		if a.ID == employeeID && a.WorkID == workID {
			role = a.RoleOnWork
		}
	}
	return role, nil
}

func (m *memorySheetRepo) Assignments(_ context.Context, workID int64, p shared.Period) ([]Assignment, error) {
	var out []Assignment
	for _, a := range m.assignments {
		if a.WorkID != workID || a.DateFrom.After(p.To) || (a.DateTo != nil && a.DateTo.Before(p.From)) {
			continue
		}
		a.Employee = m.employees[a.ID]
		out = append(out, a)
	}
	return out, nil
}

func (m *memorySheetRepo) AttendanceDays(_ context.Context, employeeID, _ int64, _ shared.Period) (int, error) {
	if m.failLookups {
		return 0, errLookup
	}
	return m.attendance[employeeID], nil
}

func (m *memorySheetRepo) CoveringRate(_ context.Context, employeeID int64, _ shared.Period) (float64, bool, error) {
	if m.failLookups {
		return 0, false, errLookup
	}
	r, ok := m.rates[employeeID]
	return r, ok, nil
}

func (m *memorySheetRepo) ApprovedBonus(_ context.Context, _ int64, employeeID int64) (float64, error) {
	if m.failLookups {
		return 0, errLookup
	}
	return m.bonuses[employeeID], nil
}

func (m *memorySheetRepo) Banking(_ context.Context, employeeID int64, _ bool) (registry.Banking, error) {
	return m.banking[employeeID], nil
}

func (m *memorySheetRepo) InsertPayment(_ context.Context, e registry.Entry) (int64, error) {
	e.ID = m.id()
	m.payments = append(m.payments, e)
	return e.ID, nil
}

func (m *memorySheetRepo) InsertExpense(_ context.Context, e Expense) error {
	m.expenses = append(m.expenses, e)
	return nil
}

func (m *memorySheetRepo) DirectorIDs(context.Context) ([]int64, error) {
	return m.directors, nil
}

func (m *memorySheetRepo) Notify(_ context.Context, reqs ...notify.Request) ([]int64, error) {
	ids := make([]int64, 0, len(reqs))
	for _, r := range reqs {
		m.notifications = append(m.notifications, r)
		ids = append(ids, int64(len(m.notifications)))
	}
	return ids, nil
}

type recordingPublisher struct {
	ids []int64
}

func (p *recordingPublisher) PublishNotifications(_ context.Context, ids []int64) error {
	p.ids = append(p.ids, ids...)
	return nil
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.n++
	return nil
}

var (
	pm       = auth.Principal{UserID: 10, Name: "ПМ", Role: auth.RolePM}
	otherPM  = auth.Principal{UserID: 11, Name: "Другой ПМ", Role: auth.RoleHeadPM}
	director = auth.Principal{UserID: 900, Name: "Директор", Role: auth.RoleDirectorGen}
	buh      = auth.Principal{UserID: 950, Name: "Бухгалтер", Role: auth.RoleAccountant}
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := shared.ParseDate(s)
	require.NoError(t, err)
	return d
}

func ptr[T any](v T) *T { return &v }

type fixture struct {
	repo      *memorySheetRepo
	svc       *Service
	publisher *recordingPublisher
	stats     *countingInvalidator
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := newMemorySheetRepo()
	pmID := pm.UserID
	repo.works[1] = Work{ID: 1, Title: "Монтаж котельной", CustomerName: "ООО Ромашка", PMID: &pmID}
	repo.employees[101] = Employee{ID: 101, FIO: "Иванов И.И.", DayRate: 3000}
	repo.employees[102] = Employee{ID: 102, FIO: "Петров П.П.", DayRate: 2500, IsSelfEmployed: true}
	repo.banking[101] = registry.Banking{INN: "500100732259", BankName: "Сбербанк"}
	pub := &recordingPublisher{}
	inv := &countingInvalidator{}
	svc := NewService(repo, nil, nil, pub, inv, nil)
	svc.newBatch = func() uuid.UUID { return uuid.MustParse("6f1c1f7e-1b7a-4d5e-9f00-000000000001") }
	return fixture{repo: repo, svc: svc, publisher: pub, stats: inv}
}

func (f fixture) createSheet(t *testing.T, workID *int64) *Sheet {
	t.Helper()
	sheet, err := f.svc.Create(context.Background(), CreateRequest{WorkID: workID, PeriodFrom: "2024-03-01", PeriodTo: "2024-03-31"}, pm)
	require.NoError(t, err)
	return sheet
}

func TestStatusTransitionTable(t *testing.T) {
	cases := []struct {
		from Status
		op   Op
		to   Status
		ok   bool
	}{
		{StatusDraft, OpSubmit, StatusPending, true},
		{StatusRework, OpSubmit, StatusPending, true},
		{StatusPending, OpApprove, StatusApproved, true},
		{StatusPending, OpRework, StatusRework, true},
		{StatusApproved, OpPay, StatusPaid, true},
		{StatusPaid, OpPay, "", false},
		{StatusDraft, OpApprove, "", false},
		{StatusApproved, OpSubmit, "", false},
		{StatusCancelled, OpSubmit, "", false},
	}
	for _, tc := range cases {
		next, err := tc.from.Next(tc.op)
		if !tc.ok {
			require.ErrorIs(t, err, httpx.ErrConflict, "%s from %s", tc.op, tc.from)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.to, next)
	}
	require.True(t, StatusRework.Editable())
	require.False(t, StatusPending.Editable())
	require.True(t, StatusDraft.Deletable())
	require.False(t, StatusRework.Deletable())
}

func TestDefaultTitle(t *testing.T) {
	from, to := day(t, "2024-03-01"), day(t, "2024-03-31")
	require.Equal(t, "Ведомость Март 2024 — ООО Ромашка", DefaultTitle(&Work{Title: "Монтаж", CustomerName: "ООО Ромашка"}, from, to))
	require.Equal(t, "Ведомость Март 2024 — Монтаж", DefaultTitle(&Work{Title: "Монтаж"}, from, to))
	require.Equal(t, "Ведомость 2024-03-01 — 2024-03-31", DefaultTitle(nil, from, to))
}

func TestCreateValidatesPeriodAndScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateRequest{PeriodFrom: "2024-04-01", PeriodTo: "2024-03-01"}, pm)
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = f.svc.Create(ctx, CreateRequest{WorkID: ptr(int64(1)), PeriodFrom: "2024-03-01", PeriodTo: "2024-03-31"}, otherPM)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	_, err = f.svc.Create(ctx, CreateRequest{WorkID: ptr(int64(77)), PeriodFrom: "2024-03-01", PeriodTo: "2024-03-31"}, director)
	require.ErrorIs(t, err, httpx.ErrNotFound)

	sheet := f.createSheet(t, ptr(int64(1)))
	require.Equal(t, StatusDraft, sheet.Status)
	require.Equal(t, "Ведомость Март 2024 — ООО Ромашка", sheet.Title)
	require.Equal(t, pm.UserID, sheet.CreatedBy)
}

func TestAddItemComputesAndAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet := f.createSheet(t, ptr(int64(1)))
	f.repo.assignments = append(f.repo.assignments, Assignment{Employee: Employee{ID: 101}, WorkID: 1, DateFrom: day(t, "2024-01-01"), RoleOnWork: "сварщик"})

	item, err := f.svc.AddItem(ctx, ItemRequest{SheetID: sheet.ID, EmployeeID: 101, DaysWorked: 20, Bonus: 5000, Penalty: 1000}, pm)
	require.NoError(t, err)
	require.Equal(t, 3000.0, item.DayRate)
	require.Equal(t, "сварщик", item.RoleOnWork)
	require.Equal(t, "Иванов И.И.", item.EmployeeName)
	require.Equal(t, registry.MethodCard, item.PaymentMethod)
	require.Equal(t, 65000.0, item.Accrued)
	require.Equal(t, 64000.0, item.Payout)

	got, err := f.svc.repo.Get(ctx, sheet.ID)
	require.NoError(t, err)
	require.Equal(t, 64000.0, got.TotalPayout)
	require.Equal(t, 1, got.WorkersCount)

	_, err = f.svc.AddItem(ctx, ItemRequest{SheetID: sheet.ID, EmployeeID: 101, DaysWorked: 1}, pm)
	require.ErrorIs(t, err, ErrDuplicateEmployee)

	_, err = f.svc.AddItem(ctx, ItemRequest{SheetID: sheet.ID, EmployeeID: 404, DaysWorked: 1}, pm)
	require.ErrorIs(t, err, httpx.ErrNotFound)

	_, err = f.svc.AddItem(ctx, ItemRequest{SheetID: sheet.ID, EmployeeID: 102, Penalty: -5}, pm)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdateItemMergesInputs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet := f.createSheet(t, nil)
	item, err := f.svc.AddItem(ctx, ItemRequest{SheetID: sheet.ID, EmployeeID: 101, DaysWorked: 10, DayRate: 2000}, pm)
	require.NoError(t, err)

	updated, err := f.svc.UpdateItem(ctx, item.ID, ItemUpdateRequest{OvertimeHours: ptr(4.0), AdvancePaid: ptr(5000.0)}, pm)
	require.NoError(t, err)
	require.Equal(t, 10.0, updated.DaysWorked)
	require.Equal(t, 0.0, updated.OvertimeRate)
	require.Equal(t, 12000.0, updated.OvertimeAmount)
	require.Equal(t, 32000.0, updated.Accrued)
	require.Equal(t, 27000.0, updated.Payout)

	got, err := f.repo.Get(ctx, sheet.ID)
	require.NoError(t, err)
	require.Equal(t, 27000.0, got.TotalPayout)
	require.Equal(t, 5000.0, got.TotalAdvancePaid)

	require.NoError(t, f.svc.DeleteItem(ctx, item.ID, pm))
	got, err = f.repo.Get(ctx, sheet.ID)
	require.NoError(t, err)
	require.Equal(t, calc.Totals{}, got.Totals)
}

func TestItemMutationOutsideEditableStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet := f.createSheet(t, nil)
	item, err := f.svc.AddItem(ctx, ItemRequest{SheetID: sheet.ID, EmployeeID: 101, DaysWorked: 1}, pm)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, sheet.ID, pm)
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, ItemRequest{SheetID: sheet.ID, EmployeeID: 102, DaysWorked: 1}, pm)
	require.ErrorIs(t, err, ErrNotEditable)
	_, err = f.svc.UpdateItem(ctx, item.ID, ItemUpdateRequest{DaysWorked: ptr(2.0)}, pm)
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.ErrorIs(t, f.svc.DeleteItem(ctx, item.ID, pm), httpx.ErrConflict)
	_, err = f.svc.Update(ctx, sheet.ID, UpdateRequest{Title: ptr("x")}, pm)
	require.ErrorIs(t, err, httpx.ErrConflict)
	_, err = f.svc.Recalc(ctx, sheet.ID, pm)
	require.ErrorIs(t, err, ErrNotEditable)
	require.ErrorIs(t, f.svc.Delete(ctx, sheet.ID, pm), ErrNotDeletable)
}

func TestLifecycleSubmitApprovePay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet := f.createSheet(t, ptr(int64(1)))
	_, err := f.svc.AddItem(ctx, ItemRequest{SheetID: sheet.ID, EmployeeID: 101, DaysWorked: 20, Bonus: 5000, Penalty: 1000}, pm)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, ItemRequest{SheetID: sheet.ID, EmployeeID: 102, DaysWorked: 1, DayRate: 1000, AdvancePaid: 2000}, pm)
	require.NoError(t, err)

	submitted, err := f.svc.Submit(ctx, sheet.ID, pm)
	require.NoError(t, err)
	require.Equal(t, StatusPending, submitted.Status)
	require.Equal(t, 64000.0, submitted.TotalPayout)
	require.Len(t, f.repo.notifications, 2)
	for _, n := range f.repo.notifications {
		require.Equal(t, notify.KindPayrollApproval, n.Kind)
		require.Contains(t, n.Message, "к выплате")
	}
	require.Len(t, f.publisher.ids, 2)

	_, err = f.svc.Pay(ctx, sheet.ID, buh)
	require.ErrorIs(t, err, httpx.ErrConflict)

	approved, err := f.svc.Approve(ctx, sheet.ID, director)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, director.UserID, *approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	last := f.repo.notifications[len(f.repo.notifications)-1]
	require.Equal(t, pm.UserID, last.UserID)
	require.Equal(t, notify.KindPayrollApproved, last.Kind)

	res, err := f.svc.Pay(ctx, sheet.ID, buh)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, res.Sheet.Status)
	require.Equal(t, 1, res.PaymentsCreated)
	require.Len(t, f.repo.payments, 1)
	entry := f.repo.payments[0]
	require.Equal(t, 64000.0, entry.Amount)
	require.Equal(t, registry.TypeSalary, entry.PaymentType)
	require.Equal(t, registry.StatusPending, entry.Status)
	require.Equal(t, "500100732259", entry.INN)
	require.NotNil(t, entry.BatchID)

	require.Len(t, f.repo.expenses, 1)
	exp := f.repo.expenses[0]
	require.Equal(t, int64(1), exp.WorkID)
	require.Equal(t, day(t, "2024-03-31"), exp.Date)
	require.Equal(t, "Ведомость #1", exp.Comment)
	require.Equal(t, "Иванов И.И.", exp.EmployeeName)

	last = f.repo.notifications[len(f.repo.notifications)-1]
	require.Equal(t, notify.KindPayrollPaid, last.Kind)
	require.Contains(t, last.Message, "1")

	_, err = f.svc.Pay(ctx, sheet.ID, buh)
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.Len(t, f.repo.payments, 1)
	require.Equal(t, 6, f.stats.n)
}

func TestPayUnboundSheetSkipsExpenses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet := f.createSheet(t, nil)
	_, err := f.svc.AddItem(ctx, ItemRequest{SheetID: sheet.ID, EmployeeID: 102, DaysWorked: 2}, pm)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, sheet.ID, pm)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, sheet.ID, director)
	require.NoError(t, err)
	res, err := f.svc.Pay(ctx, sheet.ID, director)
	require.NoError(t, err)
	require.Equal(t, 1, res.PaymentsCreated)
	require.Empty(t, f.repo.expenses)
	require.Empty(t, f.repo.payments[0].INN)
}

func TestReworkRequiresComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet := f.createSheet(t, nil)
	_, err := f.svc.Submit(ctx, sheet.ID, pm)
	require.NoError(t, err)

	_, err = f.svc.Rework(ctx, sheet.ID, "  ", director)
	require.ErrorIs(t, err, ErrCommentRequired)

	back, err := f.svc.Rework(ctx, sheet.ID, "нет табеля", director)
	require.NoError(t, err)
	require.Equal(t, StatusRework, back.Status)
	require.Equal(t, "нет табеля", back.DirectorComment)
	last := f.repo.notifications[len(f.repo.notifications)-1]
	require.Equal(t, notify.KindPayrollRework, last.Kind)
	require.Equal(t, "нет табеля", last.Message)

	_, err = f.svc.Update(ctx, sheet.ID, UpdateRequest{Comment: ptr("исправлено")}, pm)
	require.NoError(t, err)
	again, err := f.svc.Submit(ctx, sheet.ID, pm)
	require.NoError(t, err)
	require.Equal(t, StatusPending, again.Status)
}

func TestUpdateKeepsPeriodValid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet := f.createSheet(t, nil)
	_, err := f.svc.Update(ctx, sheet.ID, UpdateRequest{PeriodFrom: ptr("2024-04-15")}, pm)
	require.ErrorIs(t, err, ErrInvalidPeriod)

	updated, err := f.svc.Update(ctx, sheet.ID, UpdateRequest{Title: ptr("Март, участок 2"), PeriodTo: ptr("2024-03-15")}, pm)
	require.NoError(t, err)
	require.Equal(t, "Март, участок 2", updated.Title)
	require.Equal(t, day(t, "2024-03-15"), updated.PeriodTo)
}

func TestDeleteDraftCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet := f.createSheet(t, nil)
	_, err := f.svc.AddItem(ctx, ItemRequest{SheetID: sheet.ID, EmployeeID: 101, DaysWorked: 1}, pm)
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(ctx, sheet.ID, otherPM), httpx.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, sheet.ID, pm))
	require.Empty(t, f.repo.items)
	_, err = f.svc.Get(ctx, sheet.ID, ScopeFor(director))
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestScopeRestrictsProjectManagers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.createSheet(t, ptr(int64(1)))
	foreign, err := f.svc.Create(ctx, CreateRequest{PeriodFrom: "2024-03-01", PeriodTo: "2024-03-31"}, director)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, foreign.ID, ScopeFor(pm))
	require.ErrorIs(t, err, httpx.ErrForbidden)
	detail, err := f.svc.Get(ctx, mine.ID, ScopeFor(pm))
	require.NoError(t, err)
	require.Equal(t, mine.ID, detail.Sheet.ID)

	sheets, total, err := f.svc.List(ctx, ListFilter{Scope: ScopeFor(pm)})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, mine.ID, sheets[0].ID)

	_, total, err = f.svc.List(ctx, ListFilter{Scope: ScopeFor(director)})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	_, _, err = f.svc.List(ctx, ListFilter{Status: "archived"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestAutoFillDerivesAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.employees[103] = Employee{ID: 103, FIO: "Сидоров С.С.", DayRate: 0}
	f.repo.assignments = []Assignment{
		{Employee: Employee{ID: 101}, WorkID: 1, DateFrom: day(t, "2024-02-01"), RoleOnWork: "монтажник"},
		{Employee: Employee{ID: 102}, WorkID: 1, DateFrom: day(t, "2024-03-20"), DateTo: ptr(day(t, "2024-04-10"))},
		{Employee: Employee{ID: 103}, WorkID: 1, DateFrom: day(t, "2024-03-01"), DateTo: ptr(day(t, "2024-03-05"))},
		{Employee: Employee{ID: 101}, WorkID: 1, DateFrom: day(t, "2024-03-10")},
		{Employee: Employee{ID: 104}, WorkID: 2, DateFrom: day(t, "2024-03-01")},
	}
	f.repo.attendance[101] = 18
	f.repo.rates[101] = 3500
	f.repo.bonuses[101] = 7000
	sheet := f.createSheet(t, ptr(int64(1)))

	res, err := f.svc.AutoFill(ctx, sheet.ID, pm)
	require.NoError(t, err)
	require.Equal(t, 3, res.Filled)
	require.Equal(t, 1, res.Skipped)

	byEmp := map[int64]Item{}
	for _, it := range res.Items {
		byEmp[it.EmployeeID] = it
	}
	require.Equal(t, 18.0, byEmp[101].DaysWorked)
	require.Equal(t, 3500.0, byEmp[101].DayRate)
	require.Equal(t, 7000.0, byEmp[101].Bonus)
	require.Equal(t, 70000.0, byEmp[101].Payout)
	require.Equal(t, "монтажник", byEmp[101].RoleOnWork)

	require.Equal(t, 12.0, byEmp[102].DaysWorked)
	require.Equal(t, 2500.0, byEmp[102].DayRate)
	require.Equal(t, registry.MethodSelfEmployed, byEmp[102].PaymentMethod)
	require.True(t, byEmp[102].IsSelfEmployed)

	require.Equal(t, 5.0, byEmp[103].DaysWorked)
	require.Equal(t, 0.0, byEmp[103].Payout)

	got, err := f.repo.Get(ctx, sheet.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.WorkersCount)
	require.Equal(t, 100000.0, got.TotalPayout)

	again, err := f.svc.AutoFill(ctx, sheet.ID, pm)
	require.NoError(t, err)
	require.Equal(t, 0, again.Filled)
	require.Equal(t, 4, again.Skipped)
	require.Empty(t, again.Items)
}

func TestAutoFillDegradesOnLookupFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.failLookups = true
	f.repo.assignments = []Assignment{{Employee: Employee{ID: 101}, WorkID: 1, DateFrom: day(t, "2024-03-25")}}
	sheet := f.createSheet(t, ptr(int64(1)))

	res, err := f.svc.AutoFill(ctx, sheet.ID, pm)
	require.NoError(t, err)
	require.Equal(t, 1, res.Filled)
	it := res.Items[0]
	require.Equal(t, 7.0, it.DaysWorked)
	require.Equal(t, 0.0, it.DayRate)
	require.Equal(t, 0.0, it.Bonus)
	require.Equal(t, 0.0, it.Payout)

	got, err := f.svc.repo.Get(ctx, sheet.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.WorkersCount)
}

func TestAutoFillRequiresWorkAndRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unbound := f.createSheet(t, nil)
	_, err := f.svc.AutoFill(ctx, unbound.ID, pm)
	require.ErrorIs(t, err, ErrUnboundSheet)

	f.repo.assignments = []Assignment{{Employee: Employee{ID: 101}, WorkID: 1, DateFrom: day(t, "2024-03-01")}}
	bound := f.createSheet(t, ptr(int64(1)))
	f.repo.failInsert = true
	_, err = f.svc.AutoFill(ctx, bound.ID, pm)
	require.Error(t, err)
	require.Empty(t, f.repo.items)
}

func TestDraftMutationsInvalidateStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.assignments = []Assignment{{Employee: Employee{ID: 102}, WorkID: 1, DateFrom: day(t, "2024-03-01")}}

	sheet := f.createSheet(t, ptr(int64(1)))
	require.Equal(t, 1, f.stats.n)

	item, err := f.svc.AddItem(ctx, ItemRequest{SheetID: sheet.ID, EmployeeID: 101, DaysWorked: 2, DayRate: 1000}, pm)
	require.NoError(t, err)
	require.Equal(t, 2, f.stats.n)

	_, err = f.svc.AutoFill(ctx, sheet.ID, pm)
	require.NoError(t, err)
	require.Equal(t, 3, f.stats.n)

	_, err = f.svc.UpdateItem(ctx, item.ID, ItemUpdateRequest{DaysWorked: ptr(3.0)}, pm)
	require.NoError(t, err)
	require.Equal(t, 4, f.stats.n)

	_, err = f.svc.Recalc(ctx, sheet.ID, pm)
	require.NoError(t, err)
	require.Equal(t, 5, f.stats.n)

	_, err = f.svc.Update(ctx, sheet.ID, UpdateRequest{Title: ptr("Март")}, pm)
	require.NoError(t, err)
	require.Equal(t, 6, f.stats.n)

	require.NoError(t, f.svc.DeleteItem(ctx, item.ID, pm))
	require.Equal(t, 7, f.stats.n)

	require.NoError(t, f.svc.Delete(ctx, sheet.ID, pm))
	require.Equal(t, 8, f.stats.n)

	require.ErrorIs(t, f.svc.Delete(ctx, sheet.ID, pm), httpx.ErrNotFound)
	require.Equal(t, 8, f.stats.n)
}

func TestRecalcReappliesFormula(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet := f.createSheet(t, nil)
	item, err := f.svc.AddItem(ctx, ItemRequest{SheetID: sheet.ID, EmployeeID: 101, DaysWorked: 2, DayRate: 1000}, pm)
	require.NoError(t, err)

	stale := f.repo.items[item.ID]
	stale.Payout, stale.Accrued = 1, 1
	f.repo.items[item.ID] = stale

	res, err := f.svc.Recalc(ctx, sheet.ID, pm)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.Equal(t, 2000.0, res.Items[0].Payout)
	require.Equal(t, 2.0, res.Items[0].DaysWorked)
	require.Equal(t, 2000.0, res.Sheet.TotalPayout)
}

func newTestRouter(t *testing.T, f fixture) (http.Handler, *auth.Verifier) {
	t.Helper()
	v := auth.NewVerifier("secret", "")
	mw := auth.Middleware{Verifier: v}
	r := chi.NewRouter()
	r.Use(mw.Authenticate)
	NewHandler(nil, f.svc, mw).MountRoutes(r)
	return r, v
}

func doRequest(t *testing.T, h http.Handler, v *auth.Verifier, p auth.Principal, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := v.Issue(p, time.Hour)
	require.NoError(t, err)
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRoutesAndRoles(t *testing.T) {
	f := newFixture(t)
	h, v := newTestRouter(t, f)

	rec := doRequest(t, h, v, buh, http.MethodPost, "/sheets", `{"period_from":"2024-03-01","period_to":"2024-03-31"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, h, v, pm, http.MethodPost, "/sheets", `{"period_from":"2024-03-01"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, v, pm, http.MethodPost, "/sheets", `{"work_id":1,"period_from":"2024-03-01","period_to":"2024-03-31"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"draft"`)

	rec = doRequest(t, h, v, pm, http.MethodPost, "/items", `{"sheet_id":1,"employee_id":101,"days_worked":20,"bonus":5000,"penalty":1000}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"payout":64000`)

	rec = doRequest(t, h, v, pm, http.MethodGet, "/items?sheet_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, v, pm, http.MethodPut, "/sheets/1/submit", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, v, pm, http.MethodPut, "/sheets/1/approve", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, h, v, director, http.MethodPut, "/sheets/1/rework", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, v, director, http.MethodPut, "/sheets/1/approve", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, v, pm, http.MethodPut, "/sheets/1/pay", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, h, v, buh, http.MethodPut, "/sheets/1/pay", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"payments_created":1`)

	rec = doRequest(t, h, v, buh, http.MethodPut, "/sheets/1/pay", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, h, v, otherPM, http.MethodGet, "/sheets/1", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, h, v, director, http.MethodGet, "/sheets?status=paid", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":1`)

	rec = doRequest(t, h, v, pm, http.MethodDelete, "/sheets/1", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, h, v, pm, http.MethodPost, "/items/auto-fill", `{"sheet_id":1}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}
