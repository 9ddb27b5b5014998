package sheets

import "github.com/opscrm/opscrm/internal/payroll/registry"

// CreateRequest is the payload of POST /sheets.
type CreateRequest struct {
	WorkID     *int64 `json:"work_id" validate:"omitempty,gt=0"`
	Title      string `json:"title" validate:"max=255"`
	PeriodFrom string `json:"period_from" validate:"required,datetime=2006-01-02"`
	PeriodTo   string `json:"period_to" validate:"required,datetime=2006-01-02"`
	Comment    string `json:"comment"`
}

// UpdateRequest is the payload of PUT /sheets/{id}.
type UpdateRequest struct {
	Title      *string `json:"title" validate:"omitempty,max=255"`
	PeriodFrom *string `json:"period_from" validate:"omitempty,datetime=2006-01-02"`
	PeriodTo   *string `json:"period_to" validate:"omitempty,datetime=2006-01-02"`
	Comment    *string `json:"comment"`
}

// ReworkRequest is the payload of PUT /sheets/{id}/rework.
type ReworkRequest struct {
	DirectorComment string `json:"director_comment"`
}

// ItemRequest is the payload of POST /items.
type ItemRequest struct {
	SheetID          int64           `json:"sheet_id" validate:"required,gt=0"`
	EmployeeID       int64           `json:"employee_id" validate:"required,gt=0"`
	RoleOnWork       string          `json:"role_on_work"`
	DaysWorked       float64         `json:"days_worked" validate:"gte=0"`
	DayRate          float64         `json:"day_rate" validate:"gte=0"`
	Bonus            float64         `json:"bonus" validate:"gte=0"`
	OvertimeHours    float64         `json:"overtime_hours" validate:"gte=0"`
	OvertimeRate     float64         `json:"overtime_rate" validate:"gte=0"`
	Penalty          float64         `json:"penalty" validate:"gte=0"`
	PenaltyReason    string          `json:"penalty_reason"`
	AdvancePaid      float64         `json:"advance_paid" validate:"gte=0"`
	Deductions       float64         `json:"deductions" validate:"gte=0"`
	DeductionsReason string          `json:"deductions_reason"`
	PaymentMethod    registry.Method `json:"payment_method" validate:"omitempty,oneof=card cash transfer self_employed"`
	Comment          string          `json:"comment"`
}

// ItemUpdateRequest is the payload of PUT /items/{id}. Nil fields keep their value.
type ItemUpdateRequest struct {
	RoleOnWork       *string          `json:"role_on_work"`
	DaysWorked       *float64         `json:"days_worked" validate:"omitempty,gte=0"`
	DayRate          *float64         `json:"day_rate" validate:"omitempty,gte=0"`
	Bonus            *float64         `json:"bonus" validate:"omitempty,gte=0"`
	OvertimeHours    *float64         `json:"overtime_hours" validate:"omitempty,gte=0"`
	OvertimeRate     *float64         `json:"overtime_rate" validate:"omitempty,gte=0"`
	Penalty          *float64         `json:"penalty" validate:"omitempty,gte=0"`
	PenaltyReason    *string          `json:"penalty_reason"`
	AdvancePaid      *float64         `json:"advance_paid" validate:"omitempty,gte=0"`
	Deductions       *float64         `json:"deductions" validate:"omitempty,gte=0"`
	DeductionsReason *string          `json:"deductions_reason"`
	PaymentMethod    *registry.Method `json:"payment_method" validate:"omitempty,oneof=card cash transfer self_employed"`
	Comment          *string          `json:"comment"`
}

// SheetRef is the payload of the auto-fill and recalc endpoints.
type SheetRef struct {
	SheetID int64 `json:"sheet_id" validate:"required,gt=0"`
}

// ListResponse is returned by GET /sheets.
type ListResponse struct {
	Sheets []Sheet `json:"sheets"`
	Total  int     `json:"total"`
}
