// Package sheets implements payroll sheets: the approval state machine, line
// items, auto-fill from assignments and the payment materialisation on pay.
package sheets

import (
	"slices"
	"time"

	"github.com/opscrm/opscrm/internal/payroll/calc"
	"github.com/opscrm/opscrm/internal/payroll/registry"
)

// Status enumerates payroll sheet states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRework    Status = "rework"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Op is a state-changing operation on a sheet.
type Op string

const (
	OpSubmit  Op = "submit"
	OpApprove Op = "approve"
	OpRework  Op = "rework"
	OpPay     Op = "pay"
)

type transition struct {
	from []Status
	to   Status
}

var transitions = map[Op]transition{
	OpSubmit:  {from: []Status{StatusDraft, StatusRework}, to: StatusPending},
	OpApprove: {from: []Status{StatusPending}, to: StatusApproved},
	OpRework:  {from: []Status{StatusPending}, to: StatusRework},
	OpPay:     {from: []Status{StatusApproved}, to: StatusPaid},
}

// Next returns the status op leads to from s, or ErrInvalidTransition.
func (s Status) Next(op Op) (Status, error) {
	t, ok := transitions[op]
	if !ok || !slices.Contains(t.from, s) {
		return "", invalidTransition(op, s)
	}
	return t.to, nil
}

// Editable reports whether the header and items of a sheet may change.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusRework
}

// Deletable reports whether the sheet may be removed.
func (s Status) Deletable() bool {
	return s == StatusDraft
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRework, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// Sheet is a payroll_sheets row joined with its work and people.
type Sheet struct {
	ID              int64      `json:"id"`
	WorkID          *int64     `json:"work_id"`
	WorkTitle       string     `json:"work_title,omitempty"`
	CustomerName    string     `json:"customer_name,omitempty"`
	PMID            *int64     `json:"pm_id,omitempty"`
	Title           string     `json:"title"`
	PeriodFrom      time.Time  `json:"period_from"`
	PeriodTo        time.Time  `json:"period_to"`
	Status          Status     `json:"status"`
	Comment         string     `json:"comment,omitempty"`
	DirectorComment string     `json:"director_comment,omitempty"`
	CreatedBy       int64      `json:"created_by"`
	CreatorName     string     `json:"creator_name,omitempty"`
	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	ApproverName    string     `json:"approver_name,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	PaidBy          *int64     `json:"paid_by,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	calc.Totals
}

// Item is a payroll_items row. Output fields are derived by calc.Compute.
type Item struct {
	ID               int64           `json:"id"`
	SheetID          int64           `json:"sheet_id"`
	EmployeeID       int64           `json:"employee_id"`
	EmployeeName     string          `json:"employee_name"`
	EmployeePhone    string          `json:"emp_phone,omitempty"`
	RoleOnWork       string          `json:"role_on_work,omitempty"`
	IsSelfEmployed   bool            `json:"is_self_employed"`
	DaysWorked       float64         `json:"days_worked"`
	DayRate          float64         `json:"day_rate"`
	BaseAmount       float64         `json:"base_amount"`
	Bonus            float64         `json:"bonus"`
	OvertimeHours    float64         `json:"overtime_hours"`
	OvertimeRate     float64         `json:"overtime_rate"`
	OvertimeAmount   float64         `json:"overtime_amount"`
	Penalty          float64         `json:"penalty"`
	PenaltyReason    string          `json:"penalty_reason,omitempty"`
	AdvancePaid      float64         `json:"advance_paid"`
	Deductions       float64         `json:"deductions"`
	DeductionsReason string          `json:"deductions_reason,omitempty"`
	Accrued          float64         `json:"accrued"`
	Payout           float64         `json:"payout"`
	PaymentMethod    registry.Method `json:"payment_method"`
	Comment          string          `json:"comment,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Inputs returns the user-editable numbers of the item.
func (it Item) Inputs() calc.Inputs {
	return calc.Inputs{
		DaysWorked:    it.DaysWorked,
		DayRate:       it.DayRate,
		Bonus:         it.Bonus,
		OvertimeHours: it.OvertimeHours,
		OvertimeRate:  it.OvertimeRate,
		Penalty:       it.Penalty,
		AdvancePaid:   it.AdvancePaid,
		Deductions:    it.Deductions,
	}
}

// Recompute overwrites the derived fields from the current inputs. The stored
// overtime rate stays as entered; zero keeps meaning "day rate times 1.5".
func (it *Item) Recompute() {
	res := calc.Compute(it.Inputs())
	it.BaseAmount = res.BaseAmount
	it.OvertimeAmount = res.OvertimeAmount
	it.Accrued = res.Accrued
	it.Payout = res.Payout
}

// Line projects the item for the totals aggregate.
func (it Item) Line() calc.Line {
	return calc.Line{
		Accrued:     it.Accrued,
		Bonus:       it.Bonus,
		Penalty:     it.Penalty,
		Deductions:  it.Deductions,
		AdvancePaid: it.AdvancePaid,
		Payout:      it.Payout,
	}
}

// Lines projects items for calc.Aggregate.
func Lines(items []Item) []calc.Line {
	out := make([]calc.Line, len(items))
	for i, it := range items {
		out[i] = it.Line()
	}
	return out
}

// Work is the subset of a work order the payroll module reads.
type Work struct {
	ID           int64
	Title        string
	CustomerName string
	PMID         *int64
	CreatedBy    *int64
}

// Employee is the subset of an employee the payroll module reads.
type Employee struct {
	ID             int64
	FIO            string
	DayRate        float64
	IsSelfEmployed bool
}

// Assignment is an employee placed on a work for a date range, joined with
// the employee record.
type Assignment struct {
	Employee
	WorkID     int64
	DateFrom   time.Time
	DateTo     *time.Time
	RoleOnWork string
}

// ListFilter narrows sheet listings.
type ListFilter struct {
	WorkID     int64
	Status     Status
	PeriodFrom *time.Time
	PeriodTo   *time.Time
	Scope      Scope
	Limit      int
	Offset     int
}

// Changes is a partial header update. Nil fields are left untouched.
type Changes struct {
	Title      *string
	PeriodFrom *time.Time
	PeriodTo   *time.Time
	Comment    *string
}

// StatusChange is written by the approval transitions.
type StatusChange struct {
	Status          Status
	ApprovedBy      *int64
	PaidBy          *int64
	DirectorComment *string
}

// Expense is a work_expenses row of category fot.
type Expense struct {
	WorkID       int64
	Amount       float64
	Date         time.Time
	EmployeeID   int64
	EmployeeName string
	Comment      string
	CreatedBy    int64
}

// ExpenseCategory is the labor cost category of materialised expenses.
const ExpenseCategory = "fot"

// Detail is a sheet with its items and materialised payments.
type Detail struct {
	Sheet    *Sheet           `json:"sheet"`
	Items    []Item           `json:"items"`
	Payments []registry.Entry `json:"payments"`
}

// AutoFillResult reports what an auto-fill run inserted.
type AutoFillResult struct {
	Filled  int    `json:"filled"`
	Skipped int    `json:"skipped"`
	Items   []Item `json:"items"`
}

// PayResult is returned by pay.
type PayResult struct {
	Sheet           *Sheet `json:"sheet"`
	PaymentsCreated int    `json:"payments_created"`
}

// RecalcResult is returned by recalc.
type RecalcResult struct {
	Sheet *Sheet `json:"sheet"`
	Items []Item `json:"items"`
}
