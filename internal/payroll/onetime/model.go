// Package onetime handles ad-hoc payment requests outside payroll sheets:
// taxi, fuel, meals, materials and other one-off reimbursements.
package onetime

import (
	"slices"
	"time"

	"github.com/opscrm/opscrm/internal/payroll/registry"
)

// Status enumerates one-time request states.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusPaid     Status = "paid"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusPaid},
}

// CanTransitionTo reports whether a request may move from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusPaid:
		return true
	}
	return false
}

// UnknownEmployee is snapshotted when the employee row is missing.
const UnknownEmployee = "Неизвестно"

// Payment is a one_time_payments row.
type Payment struct {
	ID              int64                `json:"id"`
	EmployeeID      int64                `json:"employee_id"`
	EmployeeName    string               `json:"employee_name"`
	WorkID          *int64               `json:"work_id"`
	WorkTitle       string               `json:"work_title,omitempty"`
	Amount          float64              `json:"amount"`
	Reason          string               `json:"reason"`
	PaymentMethod   registry.Method      `json:"payment_method"`
	PaymentType     registry.PaymentType `json:"payment_type"`
	Comment         string               `json:"comment,omitempty"`
	ReceiptURL      string               `json:"receipt_url,omitempty"`
	Status          Status               `json:"status"`
	DirectorComment string               `json:"director_comment,omitempty"`
	RequestedBy     int64                `json:"requested_by"`
	RequesterName   string               `json:"requester_name,omitempty"`
	ApprovedBy      *int64               `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time           `json:"approved_at,omitempty"`
	PaidAt          *time.Time           `json:"paid_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// Employee is the snapshot source of a request.
type Employee struct {
	FIO            string
	IsSelfEmployed bool
}

// ListFilter narrows request listings. RequestedBy restricts to one requester.
type ListFilter struct {
	Status      Status
	WorkID      int64
	EmployeeID  int64
	PaymentType registry.PaymentType
	RequestedBy int64
	Limit       int
	Offset      int
}

// Decision is written by approve and reject.
type Decision struct {
	Status          Status
	ApprovedBy      *int64
	DirectorComment *string
}
