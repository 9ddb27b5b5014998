package rates

// CreateRequest is the body of POST /rates.
type CreateRequest struct {
	EmployeeID    int64    `json:"employee_id" validate:"required,gt=0"`
	DayRate       float64  `json:"day_rate" validate:"required,gt=0"`
	EffectiveFrom string   `json:"effective_from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	RoleTag       string   `json:"role_tag,omitempty" validate:"omitempty,max=100"`
	ShiftRate     *float64 `json:"shift_rate,omitempty" validate:"omitempty,gte=0"`
	OvertimeRate  *float64 `json:"overtime_rate,omitempty" validate:"omitempty,gte=0"`
	Comment       string   `json:"comment,omitempty" validate:"omitempty,max=1000"`
}

// UpdateRequest is the body of PUT /rates/{id}.
type UpdateRequest struct {
	RoleTag      *string  `json:"role_tag,omitempty" validate:"omitempty,max=100"`
	DayRate      *float64 `json:"day_rate,omitempty" validate:"omitempty,gt=0"`
	ShiftRate    *float64 `json:"shift_rate,omitempty" validate:"omitempty,gte=0"`
	OvertimeRate *float64 `json:"overtime_rate,omitempty" validate:"omitempty,gte=0"`
	Comment      *string  `json:"comment,omitempty" validate:"omitempty,max=1000"`
}
