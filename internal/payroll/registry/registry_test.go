package registry

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/opscrm/opscrm/internal/auth"
	"github.com/opscrm/opscrm/internal/platform/httpx"
)

type memoryRegistryRepo struct {
	mu      sync.Mutex
	entries map[int64]*Entry
	header  *SheetHeader
	se      map[int64]bool
}

func newMemoryRegistryRepo(entries ...Entry) *memoryRegistryRepo {
	m := &memoryRegistryRepo{entries: map[int64]*Entry{}, se: map[int64]bool{}}
	for i := range entries {
		e := entries[i]
		m.entries[e.ID] = &e
	}
	return m
}

func (m *memoryRegistryRepo) List(_ context.Context, f ListFilter) ([]Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for id := int64(1); id <= int64(len(m.entries)); id++ {
		e, ok := m.entries[id]
		if !ok {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.EmployeeID > 0 && e.EmployeeID != f.EmployeeID {
			continue
		}
		out = append(out, *e)
	}
	total := len(out)
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memoryRegistryRepo) Get(_ context.Context, id int64) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memoryRegistryRepo) SheetHeader(context.Context, int64) (*SheetHeader, error) {
	if m.header == nil {
		return nil, ErrNotFound
	}
	return m.header, nil
}

func (m *memoryRegistryRepo) ExportRows(_ context.Context, sheetID int64) ([]ExportRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []ExportRow
	for id := int64(1); id <= int64(len(m.entries)); id++ {
		e := m.entries[id]
		if sheetID > 0 && (e.SheetID == nil || *e.SheetID != sheetID) {
			continue
		}
		rows = append(rows, ExportRow{Entry: *e, SelfEmployed: m.se[e.EmployeeID]})
	}
	return rows, nil
}

func (m *memoryRegistryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRegistryRepo) GetForUpdate(ctx context.Context, id int64) (*Entry, error) {
	return m.Get(ctx, id)
}

func (m *memoryRegistryRepo) UpdateStatus(_ context.Context, id int64, change StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = change.Status
	if change.BankRef != nil {
		e.BankRef = *change.BankRef
	}
	if change.PaymentOrderNumber != nil {
		e.PaymentOrderNumber = *change.PaymentOrderNumber
	}
	if change.Status == StatusPaid {
		now := time.Now()
		e.PaidAt = &now
	}
	return nil
}

func sheetRef(id int64) *int64 { return &id }

func sampleEntries() []Entry {
	return []Entry{
		{ID: 1, SheetID: sheetRef(7), EmployeeID: 10, EmployeeName: "Иванов Иван", Amount: 64000, PaymentType: TypeSalary, PaymentMethod: MethodCard, Status: StatusPending,
			Banking: Banking{INN: "770000000001", BankName: "Сбербанк", BIK: "044525225", AccountNumber: "40817810000000000001"}},
		{ID: 2, SheetID: sheetRef(7), EmployeeID: 11, EmployeeName: "Петров Пётр", Amount: 15500.5, PaymentType: TypeSalary, PaymentMethod: MethodSelfEmployed, Status: StatusPending,
			Banking: Banking{INN: "770000000002", ContractNumber: "ГПХ-12"}},
		{ID: 3, EmployeeID: 12, EmployeeName: "Сидоров", Amount: 2500, PaymentType: TypeTaxi, PaymentMethod: MethodCash, Status: StatusPaid},
	}
}

func TestStatusTransitions(t *testing.T) {
	require.True(t, StatusPending.CanTransitionTo(StatusProcessing))
	require.True(t, StatusPending.CanTransitionTo(StatusPaid))
	require.True(t, StatusProcessing.CanTransitionTo(StatusFailed))
	require.False(t, StatusPending.CanTransitionTo(StatusFailed))
	require.False(t, StatusPaid.CanTransitionTo(StatusCancelled))
	require.False(t, StatusCancelled.CanTransitionTo(StatusPending))
	require.False(t, Status("lost").Valid())
}

func TestServiceUpdateStatus(t *testing.T) {
	repo := newMemoryRegistryRepo(sampleEntries()...)
	svc := NewService(repo, nil, nil, "ООО Тест")
	ctx := context.Background()

	ref := "PP-991"
	entry, err := svc.UpdateStatus(ctx, 1, StatusRequest{Status: StatusProcessing, BankRef: &ref}, 5)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, entry.Status)
	require.Equal(t, "PP-991", entry.BankRef)
	require.Nil(t, entry.PaidAt)

	entry, err = svc.UpdateStatus(ctx, 1, StatusRequest{Status: StatusPaid}, 5)
	require.NoError(t, err)
	require.NotNil(t, entry.PaidAt)

	_, err = svc.UpdateStatus(ctx, 1, StatusRequest{Status: StatusCancelled}, 5)
	require.ErrorIs(t, err, httpx.ErrConflict)

	_, err = svc.UpdateStatus(ctx, 2, StatusRequest{Status: "archived"}, 5)
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.UpdateStatus(ctx, 99, StatusRequest{Status: StatusPaid}, 5)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestServiceListClampsWindow(t *testing.T) {
	repo := newMemoryRegistryRepo(sampleEntries()...)
	svc := NewService(repo, nil, nil, "")
	entries, total, err := svc.List(context.Background(), ListFilter{Status: StatusPending, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, entries, 1)

	entries, total, err = svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, entries, 3)
}

func TestMergeBankingPrefersPrimary(t *testing.T) {
	got := MergeBanking(Banking{INN: "1", BankName: ""}, Banking{INN: "2", BankName: "ВТБ", BIK: "3"})
	require.Equal(t, Banking{INN: "1", BankName: "ВТБ", BIK: "3"}, got)
}

func TestBuildWorkbookLayout(t *testing.T) {
	rows := []ExportRow{
		{Entry: sampleEntries()[0]},
		{Entry: sampleEntries()[1], SelfEmployed: true},
	}
	header := &SheetHeader{ID: 7, Title: "Ведомость Март 2024 — Газпром", PeriodFrom: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), PeriodTo: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)}
	f, err := BuildWorkbook(ExportInput{OrgName: "ООО «АСГАРД СЕРВИС»", Sheet: header, Rows: rows, GeneratedAt: time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{LaborSheet, SelfEmployedSheet}, f.GetSheetList())

	cell := func(sheet, ref string) string {
		v, err := f.GetCellValue(sheet, ref, excelize.Options{RawCellValue: true})
		require.NoError(t, err)
		return v
	}
	require.Equal(t, "РЕЕСТР НА ВЫПЛАТУ ЗАРАБОТНОЙ ПЛАТЫ", cell(LaborSheet, "A1"))
	require.Equal(t, "ООО «АСГАРД СЕРВИС»", cell(LaborSheet, "A2"))
	require.Contains(t, cell(LaborSheet, "A4"), "01.03.2024")
	require.Equal(t, "Назначение платежа", cell(LaborSheet, "H5"))
	require.Equal(t, "Иванов Иван", cell(LaborSheet, "B6"))
	require.Equal(t, "64000", cell(LaborSheet, "G6"))
	require.Equal(t, "Заработная плата за март 2024", cell(LaborSheet, "H6"))
	require.Equal(t, "ИТОГО", cell(LaborSheet, "B7"))
	require.Equal(t, "64000", cell(LaborSheet, "G7"))

	require.Equal(t, "Номер ГПХ", cell(SelfEmployedSheet, "D2"))
	require.Equal(t, "Петров Пётр", cell(SelfEmployedSheet, "B3"))
	require.Equal(t, "Оплата по ГПХ №ГПХ-12", cell(SelfEmployedSheet, "H3"))
	require.Equal(t, "15500.5", cell(SelfEmployedSheet, "G4"))
}

func TestBuildWorkbookWithoutSelfEmployed(t *testing.T) {
	f, err := BuildWorkbook(ExportInput{OrgName: "Org", Rows: []ExportRow{{Entry: sampleEntries()[0]}}, GeneratedAt: time.Now()})
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{LaborSheet}, f.GetSheetList())
	v, err := f.GetCellValue(LaborSheet, "A3")
	require.NoError(t, err)
	require.Equal(t, "Ведомость: Реестр выплат", v)
}

func newTestRouter(t *testing.T, svc *Service) (http.Handler, *auth.Verifier) {
	t.Helper()
	verifier := auth.NewVerifier("test-secret", "")
	mw := auth.Middleware{Verifier: verifier}
	r := chi.NewRouter()
	r.Use(mw.Authenticate)
	NewHandler(nil, svc, mw).MountRoutes(r)
	return r, verifier
}

func do(t *testing.T, h http.Handler, v *auth.Verifier, role auth.Role, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := v.Issue(auth.Principal{UserID: 3, Name: "Бухгалтер", Role: role}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRoutes(t *testing.T) {
	repo := newMemoryRegistryRepo(sampleEntries()...)
	repo.header = &SheetHeader{ID: 7, Title: "Март", PeriodFrom: time.Now(), PeriodTo: time.Now()}
	repo.se[11] = true
	h, v := newTestRouter(t, NewService(repo, nil, nil, "Org"))

	rec := do(t, h, v, auth.RolePM, http.MethodGet, "/payments?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":2`)

	rec = do(t, h, v, auth.RolePM, http.MethodGet, "/payments?date_from=2024-13-01", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, v, auth.RolePM, http.MethodPut, "/payments/1/status", `{"status":"paid"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, v, auth.RoleAccountant, http.MethodPut, "/payments/1/status", `{"status":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, v, auth.RoleAccountant, http.MethodPut, "/payments/3/status", `{"status":"cancelled"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, v, auth.RoleAccountant, http.MethodPut, "/payments/1/status", `{"status":"paid","payment_order_number":"17"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"payment_order_number":"17"`)

	rec = do(t, h, v, auth.RoleAccountant, http.MethodGet, "/payments/export?sheet_id=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, XLSXContentType, rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "payroll_7_")
	wb, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer wb.Close()
	require.Equal(t, []string{LaborSheet, SelfEmployedSheet}, wb.GetSheetList())
}
