// Package registry is the payment registry: one row per outgoing payment,
// with the banking details captured at creation time.
package registry

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status enumerates registry entry states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusPaid, StatusCancelled},
	StatusProcessing: {StatusPaid, StatusFailed, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusPaid, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the registry may move from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// PaymentType classifies what a payment is for.
type PaymentType string

const (
	TypeSalary   PaymentType = "salary"
	TypeOneTime  PaymentType = "one_time"
	TypeTaxi     PaymentType = "taxi"
	TypeFuel     PaymentType = "fuel"
	TypeMeal     PaymentType = "meal"
	TypeMaterial PaymentType = "material"
	TypeOther    PaymentType = "other"
)

// Method is how the money reaches the employee.
type Method string

const (
	MethodCard         Method = "card"
	MethodCash         Method = "cash"
	MethodTransfer     Method = "transfer"
	MethodSelfEmployed Method = "self_employed"
)

// Banking is the snapshot of payee details stored on an entry.
type Banking struct {
	INN            string `json:"inn"`
	BankName       string `json:"bank_name"`
	BIK            string `json:"bik"`
	AccountNumber  string `json:"account_number"`
	CardNumber     string `json:"card_number,omitempty"`
	ContractNumber string `json:"contract_number,omitempty"`
}

// Entry is a payment_registry row.
type Entry struct {
	ID                 int64       `json:"id"`
	SheetID            *int64      `json:"sheet_id"`
	SheetTitle         string      `json:"sheet_title,omitempty"`
	ItemID             *int64      `json:"item_id,omitempty"`
	OneTimeID          *int64      `json:"one_time_id,omitempty"`
	WorkID             *int64      `json:"work_id,omitempty"`
	EmployeeID         int64       `json:"employee_id"`
	EmployeeName       string      `json:"employee_name"`
	Amount             float64     `json:"amount"`
	PaymentType        PaymentType `json:"payment_type"`
	PaymentMethod      Method      `json:"payment_method"`
	Status             Status      `json:"status"`
	BatchID            *uuid.UUID  `json:"batch_id,omitempty"`
	BankRef            string      `json:"bank_ref,omitempty"`
	PaymentOrderNumber string      `json:"payment_order_number,omitempty"`
	Comment            string      `json:"comment,omitempty"`
	PaidAt             *time.Time  `json:"paid_at,omitempty"`
	CreatedBy          int64       `json:"created_by"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`

	Banking
}

// ListFilter narrows registry listings.
type ListFilter struct {
	SheetID       int64
	EmployeeID    int64
	Status        Status
	PaymentMethod Method
	DateFrom      *time.Time
	DateTo        *time.Time
	Limit         int
	Offset        int
}

// StatusChange carries the optional bank confirmation fields of a transition.
type StatusChange struct {
	Status             Status
	BankRef            *string
	PaymentOrderNumber *string
	Comment            *string
}

// ExportRow is an entry joined with the current employee record for the xlsx export.
type ExportRow struct {
	Entry
	SelfEmployed bool
}

// SheetHeader describes the sheet an export belongs to.
type SheetHeader struct {
	ID         int64
	Title      string
	PeriodFrom time.Time
	PeriodTo   time.Time
}
