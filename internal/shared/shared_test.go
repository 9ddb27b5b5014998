package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestPeriodOverlap(t *testing.T) {
	p, err := NewPeriod(date(t, "2024-03-01"), date(t, "2024-03-31"))
	require.NoError(t, err)
	require.Equal(t, 31, p.Days())

	end := date(t, "2024-03-10")
	o, ok := p.Overlap(date(t, "2024-02-20"), &end)
	require.True(t, ok)
	require.Equal(t, 10, o.Days())

	o, ok = p.Overlap(date(t, "2024-03-25"), nil)
	require.True(t, ok)
	require.Equal(t, 7, o.Days())

	before := date(t, "2024-02-28")
	_, ok = p.Overlap(date(t, "2024-02-01"), &before)
	require.False(t, ok)
}

func TestNewPeriodRejectsInverted(t *testing.T) {
	_, err := NewPeriod(date(t, "2024-03-02"), date(t, "2024-03-01"))
	require.ErrorIs(t, err, ErrInvalidPeriod)

	p, err := NewPeriod(date(t, "2024-03-01"), date(t, "2024-03-01"))
	require.NoError(t, err)
	require.Equal(t, 1, p.Days())

	_, err = ParseDate("01.03.2024")
	require.Error(t, err)
}

func TestNewWindowClamps(t *testing.T) {
	require.Equal(t, Window{Limit: DefaultLimit}, NewWindow(0, -5))
	require.Equal(t, Window{Limit: MaxLimit, Offset: 10}, NewWindow(10_000, 10))
	require.Equal(t, Window{Limit: 20, Offset: 40}, NewWindow(20, 40))
}

func TestApprovalLogValidate(t *testing.T) {
	require.Error(t, ApprovalLog{}.Validate())
	require.Error(t, ApprovalLog{Module: ModulePayrollSheet, ActorID: 1, Action: ApprovalSubmit}.Validate())
	require.NoError(t, ApprovalLog{Module: ModulePayrollSheet, RefID: 3, ActorID: 1, Action: ApprovalSubmit}.Validate())
}

func TestAuditLoggerRequiresFields(t *testing.T) {
	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(t.Context(), AuditLog{}))
	require.Equal(t, "42", EntityRef(42))
}

func TestMonthName(t *testing.T) {
	require.Equal(t, "Январь", MonthName(time.January))
	require.Equal(t, "Декабрь", MonthName(time.December))
	require.Empty(t, MonthName(0))
	require.Equal(t, "05.03.2024", RUDate(date(t, "2024-03-05")))
}
