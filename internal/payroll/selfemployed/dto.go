package selfemployed

// CreateRequest is the body of POST /self-employed.
type CreateRequest struct {
	EmployeeID      *int64 `json:"employee_id,omitempty" validate:"omitempty,gt=0"`
	FullName        string `json:"full_name" validate:"required,max=300"`
	INN             string `json:"inn" validate:"required"`
	Phone           string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Email           string `json:"email,omitempty" validate:"omitempty,email"`
	BankName        string `json:"bank_name,omitempty" validate:"omitempty,max=200"`
	BIK             string `json:"bik,omitempty" validate:"omitempty,max=20"`
	CorrAccount     string `json:"corr_account,omitempty" validate:"omitempty,max=30"`
	AccountNumber   string `json:"account_number,omitempty" validate:"omitempty,max=30"`
	CardNumber      string `json:"card_number,omitempty" validate:"omitempty,max=30"`
	NPDStatus       string `json:"npd_status,omitempty" validate:"omitempty,oneof=active inactive"`
	NPDRegisteredAt string `json:"npd_registered_at,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ContractNumber  string `json:"contract_number,omitempty" validate:"omitempty,max=100"`
	ContractDate    string `json:"contract_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ContractEndDate string `json:"contract_end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Comment         string `json:"comment,omitempty" validate:"omitempty,max=1000"`
}

// UpdateRequest is the body of PUT /self-employed/{id}.
type UpdateRequest struct {
	EmployeeID      *int64  `json:"employee_id,omitempty" validate:"omitempty,gt=0"`
	FullName        *string `json:"full_name,omitempty" validate:"omitempty,min=1,max=300"`
	INN             *string `json:"inn,omitempty"`
	Phone           *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Email           *string `json:"email,omitempty" validate:"omitempty,email"`
	BankName        *string `json:"bank_name,omitempty" validate:"omitempty,max=200"`
	BIK             *string `json:"bik,omitempty" validate:"omitempty,max=20"`
	CorrAccount     *string `json:"corr_account,omitempty" validate:"omitempty,max=30"`
	AccountNumber   *string `json:"account_number,omitempty" validate:"omitempty,max=30"`
	CardNumber      *string `json:"card_number,omitempty" validate:"omitempty,max=30"`
	NPDStatus       *string `json:"npd_status,omitempty" validate:"omitempty,oneof=active inactive"`
	NPDRegisteredAt *string `json:"npd_registered_at,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ContractNumber  *string `json:"contract_number,omitempty" validate:"omitempty,max=100"`
	ContractDate    *string `json:"contract_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ContractEndDate *string `json:"contract_end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Comment         *string `json:"comment,omitempty" validate:"omitempty,max=1000"`
	IsActive        *bool   `json:"is_active,omitempty"`
}

// PaymentsResponse is returned by GET /self-employed/{id}/payments.
type PaymentsResponse struct {
	Payments  []PaymentRecord `json:"payments"`
	TotalPaid float64         `json:"total_paid"`
}
