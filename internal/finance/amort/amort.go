// Package amort generates loan amortization schedules. Everything in here
// is pure: no I/O, same inputs always yield the same schedule.
package amort

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidPrincipal indicates a non-positive principal.
	ErrInvalidPrincipal = errors.New("amort: principal must be positive")
	// ErrInvalidTenure indicates a non-positive tenure.
	ErrInvalidTenure = errors.New("amort: tenure must be at least one month")
	// ErrInvalidRate indicates a negative annual rate.
	ErrInvalidRate = errors.New("amort: rate must not be negative")
)

// InstallmentStatus tracks repayment state of one installment.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
	InstallmentOverdue InstallmentStatus = "overdue"
)

// Installment is one row of an amortization schedule.
type Installment struct {
	Number    int
	DueDate   time.Time
	Principal decimal.Decimal
	Interest  decimal.Decimal
	Total     decimal.Decimal
	Status    InstallmentStatus
}

// Convention carries the numeric conventions a product can override.
type Convention struct {
	Scale int32
}

// DefaultConvention rounds to two decimal places.
func DefaultConvention() Convention {
	return Convention{Scale: 2}
}

// ScheduleInput groups the parameters of a schedule computation.
type ScheduleInput struct {
	Principal         decimal.Decimal
	AnnualRatePercent decimal.Decimal
	TenureMonths      int
	StartDate         time.Time
	Convention        Convention
}

var (
	hundred        = decimal.NewFromInt(100)
	twelve         = decimal.NewFromInt(12)
	monthlyRateDiv = hundred.Mul(twelve)
)

// Schedule computes an equal-principal reducing-balance schedule.
//
// Each installment repays round(principal/tenure) of principal, with the
// final installment absorbing the rounding residual so the principal sums
// back exactly. Interest for installment k is charged on the outstanding
// principal before k at the monthly rate. Due dates fall one calendar month
// apart, clamped to month end when the start day overflows the target month.
func Schedule(in ScheduleInput) ([]Installment, error) {
	if in.Principal.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidPrincipal
	}
	if in.TenureMonths <= 0 {
		return nil, ErrInvalidTenure
	}
	if in.AnnualRatePercent.IsNegative() {
		return nil, ErrInvalidRate
	}
	scale := in.Convention.Scale
	if scale == 0 {
		scale = DefaultConvention().Scale
	}

	tenure := decimal.NewFromInt(int64(in.TenureMonths))
	perInstallment := in.Principal.Div(tenure).Round(scale)

	schedule := make([]Installment, 0, in.TenureMonths)
	outstanding := in.Principal
	for k := 1; k <= in.TenureMonths; k++ {
		principal := perInstallment
		if k == in.TenureMonths {
			// The residual from rounding principal/tenure lands here,
			// keeping sum(principal) == principal exactly.
			principal = outstanding
		}
		interest := outstanding.Mul(in.AnnualRatePercent).Div(monthlyRateDiv).Round(scale)
		schedule = append(schedule, Installment{
			Number:    k,
			DueDate:   AddMonthsClamped(in.StartDate, k),
			Principal: principal,
			Interest:  interest,
			Total:     principal.Add(interest),
			Status:    InstallmentPending,
		})
		outstanding = outstanding.Sub(principal)
	}
	return schedule, nil
}

// AddMonthsClamped adds calendar months, clamping to the last day of the
// target month instead of letting time.AddDate spill into the next one
// (Jan 31 + 1 month = Feb 28/29, not Mar 2/3).
func AddMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, t.Location())
}
