package registry

// StatusRequest is the body of PUT /payments/{id}/status.
type StatusRequest struct {
	Status             Status  `json:"status" validate:"required,oneof=pending processing paid failed cancelled"`
	BankRef            *string `json:"bank_ref,omitempty" validate:"omitempty,max=100"`
	PaymentOrderNumber *string `json:"payment_order_number,omitempty" validate:"omitempty,max=50"`
	Comment            *string `json:"comment,omitempty" validate:"omitempty,max=1000"`
}

// ListResponse is returned by GET /payments.
type ListResponse struct {
	Payments []Entry `json:"payments"`
	Total    int     `json:"total"`
}
