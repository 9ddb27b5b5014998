// Package selfemployed manages the banking and contract profiles of
// self-employed contractors and their payment history.
package selfemployed

import (
	"fmt"
	"regexp"
	"time"

	"github.com/opscrm/opscrm/internal/platform/httpx"
)

// NPD statuses.
const (
	NPDActive   = "active"
	NPDInactive = "inactive"
)

var innPattern = regexp.MustCompile(`^\d{12}$`)

// ErrInvalidINN indicates an INN that is not exactly 12 digits.
var ErrInvalidINN = fmt.Errorf("%w: inn must contain exactly 12 digits", httpx.ErrValidation)

// ValidateINN checks the personal tax number format.
func ValidateINN(inn string) error {
	if !innPattern.MatchString(inn) {
		return ErrInvalidINN
	}
	return nil
}

// Profile is a self_employed row.
type Profile struct {
	ID              int64      `json:"id"`
	EmployeeID      *int64     `json:"employee_id"`
	EmployeeFIO     string     `json:"emp_fio,omitempty"`
	FullName        string     `json:"full_name"`
	INN             string     `json:"inn"`
	Phone           string     `json:"phone,omitempty"`
	Email           string     `json:"email,omitempty"`
	BankName        string     `json:"bank_name,omitempty"`
	BIK             string     `json:"bik,omitempty"`
	CorrAccount     string     `json:"corr_account,omitempty"`
	AccountNumber   string     `json:"account_number,omitempty"`
	CardNumber      string     `json:"card_number,omitempty"`
	NPDStatus       string     `json:"npd_status"`
	NPDRegisteredAt *time.Time `json:"npd_registered_at,omitempty"`
	ContractNumber  string     `json:"contract_number,omitempty"`
	ContractDate    *time.Time `json:"contract_date,omitempty"`
	ContractEndDate *time.Time `json:"contract_end_date,omitempty"`
	Comment         string     `json:"comment,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Filter narrows profile listings.
type Filter struct {
	IsActive *bool
	Search   string
}

// Changes carries a partial update. Nil fields are left untouched.
type Changes struct {
	EmployeeID      *int64
	FullName        *string
	INN             *string
	Phone           *string
	Email           *string
	BankName        *string
	BIK             *string
	CorrAccount     *string
	AccountNumber   *string
	CardNumber      *string
	NPDStatus       *string
	NPDRegisteredAt *time.Time
	ContractNumber  *string
	ContractDate    *time.Time
	ContractEndDate *time.Time
	Comment         *string
	IsActive        *bool
}

// Source tells where a history record comes from.
type Source string

const (
	SourceRegistry Source = "registry"
	SourceOneTime  Source = "one_time"
)

// PaymentRecord is one line of a contractor's payment history.
type PaymentRecord struct {
	Source      Source     `json:"source"`
	ID          int64      `json:"id"`
	Amount      float64    `json:"amount"`
	PaymentType string     `json:"payment_type"`
	Status      string     `json:"status"`
	SheetTitle  string     `json:"sheet_title,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	// Linked is set on one-time requests that already have a registry entry.
	Linked bool `json:"-"`
}

// TotalPaid sums paid records. One-time requests with a registry entry are
// counted once, through the entry.
func TotalPaid(records []PaymentRecord) float64 {
	var total float64
	for _, r := range records {
		if r.Status != "paid" || (r.Source == SourceOneTime && r.Linked) {
			continue
		}
		total += r.Amount
	}
	return total
}
