package onetime

import "github.com/opscrm/opscrm/internal/payroll/registry"

// CreateRequest is the payload of POST /one-time.
type CreateRequest struct {
	EmployeeID    int64                `json:"employee_id" validate:"required,gt=0"`
	Amount        float64              `json:"amount" validate:"required,gt=0"`
	Reason        string               `json:"reason" validate:"required,max=1000"`
	WorkID        *int64               `json:"work_id" validate:"omitempty,gt=0"`
	PaymentMethod registry.Method      `json:"payment_method" validate:"omitempty,oneof=card cash transfer self_employed"`
	PaymentType   registry.PaymentType `json:"payment_type" validate:"omitempty,oneof=one_time taxi fuel meal material other"`
	Comment       string               `json:"comment"`
	ReceiptURL    string               `json:"receipt_url" validate:"omitempty,url"`
}

// DecisionRequest is the payload of approve and reject.
type DecisionRequest struct {
	DirectorComment string `json:"director_comment"`
}

// ListResponse is returned by GET /one-time.
type ListResponse struct {
	Items []Payment `json:"items"`
	Total int       `json:"total"`
}
