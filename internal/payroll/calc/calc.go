// Package calc holds the payroll line-item formula and the sheet totals aggregate.
package calc

import (
	"errors"
	"fmt"
	"math"
)

// OvertimeMultiplier applies to day_rate when no explicit overtime rate is set.
const OvertimeMultiplier = 1.5

// ErrNegativeInput indicates a calculator input below zero.
var ErrNegativeInput = errors.New("calc: inputs must not be negative")

// Inputs are the raw, user-editable numbers of a line item.
type Inputs struct {
	DaysWorked    float64
	DayRate       float64
	Bonus         float64
	OvertimeHours float64
	OvertimeRate  float64
	Penalty       float64
	AdvancePaid   float64
	Deductions    float64
}

// Result holds the derived amounts of a line item.
type Result struct {
	BaseAmount     float64
	OvertimeRate   float64
	OvertimeAmount float64
	Accrued        float64
	Payout         float64
}

// Validate rejects negative inputs.
func (in Inputs) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"days_worked", in.DaysWorked},
		{"day_rate", in.DayRate},
		{"bonus", in.Bonus},
		{"overtime_hours", in.OvertimeHours},
		{"overtime_rate", in.OvertimeRate},
		{"penalty", in.Penalty},
		{"advance_paid", in.AdvancePaid},
		{"deductions", in.Deductions},
	}
	for _, f := range fields {
		if f.value < 0 || math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s", ErrNegativeInput, f.name)
		}
	}
	return nil
}

// Compute applies the payroll formula. Payout never drops below zero.
func Compute(in Inputs) Result {
	overtimeRate := in.OvertimeRate
	if overtimeRate <= 0 {
		overtimeRate = in.DayRate * OvertimeMultiplier
	}
	base := in.DaysWorked * in.DayRate
	overtime := in.OvertimeHours * overtimeRate
	accrued := base + in.Bonus + overtime
	payout := accrued - in.Penalty - in.AdvancePaid - in.Deductions
	if payout < 0 {
		payout = 0
	}
	return Result{
		BaseAmount:     base,
		OvertimeRate:   overtimeRate,
		OvertimeAmount: overtime,
		Accrued:        accrued,
		Payout:         payout,
	}
}
