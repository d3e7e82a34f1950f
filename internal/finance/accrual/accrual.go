// Package accrual computes daily-balance interest for deposit products.
// The calculator is pure; callers feed it a balance history derived from
// the ledger and post the result through the journal engine.
package accrual

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidPeriod indicates periodEnd is not after periodStart.
	ErrInvalidPeriod = errors.New("accrual: period end must be after start")
	// ErrUnsupportedMethod indicates an accrual method this engine does not implement.
	ErrUnsupportedMethod = errors.New("accrual: unsupported method")
	// ErrInvalidRate indicates a negative annual rate.
	ErrInvalidRate = errors.New("accrual: rate must not be negative")
)

// Method selects the accrual algorithm.
type Method string

// MethodDailyBalance accrues on each balance-constant sub-interval.
const MethodDailyBalance Method = "DAILY_BALANCE"

// PostingFrequency is how often accrued interest is credited to accounts.
type PostingFrequency string

const (
	PostMonthly   PostingFrequency = "MONTHLY"
	PostQuarterly PostingFrequency = "QUARTERLY"
	PostAnnually  PostingFrequency = "ANNUALLY"
)

// BalancePoint records the ledger balance of an account from Date onward,
// until the next point.
type BalancePoint struct {
	Date    time.Time
	Balance decimal.Decimal
}

// Convention carries day-count and rounding conventions. Products override
// these explicitly rather than relying on package defaults.
type Convention struct {
	DayCountBasis int
	Scale         int32
}

// DefaultConvention is actual/365 rounded to two decimal places.
func DefaultConvention() Convention {
	return Convention{DayCountBasis: 365, Scale: 2}
}

// AccrueInput groups the parameters of one accrual computation.
type AccrueInput struct {
	History           []BalancePoint
	AnnualRatePercent decimal.Decimal
	Method            Method
	PeriodStart       time.Time
	PeriodEnd         time.Time
	Convention        Convention
}

var hundred = decimal.NewFromInt(100)

// Accrue computes interest over [PeriodStart, PeriodEnd).
//
// The period is partitioned into maximal sub-intervals of constant balance;
// each contributes balance * rate/100 * days/basis. Rounding happens once on
// the summed figure, not per sub-interval, so sub-interval boundaries cannot
// shift the result.
func Accrue(in AccrueInput) (decimal.Decimal, error) {
	if in.Method != MethodDailyBalance {
		return decimal.Zero, ErrUnsupportedMethod
	}
	if !in.PeriodEnd.After(in.PeriodStart) {
		return decimal.Zero, ErrInvalidPeriod
	}
	if in.AnnualRatePercent.IsNegative() {
		return decimal.Zero, ErrInvalidRate
	}
	conv := in.Convention
	if conv.DayCountBasis <= 0 {
		conv.DayCountBasis = DefaultConvention().DayCountBasis
	}
	if conv.Scale == 0 {
		conv.Scale = DefaultConvention().Scale
	}

	history := append([]BalancePoint(nil), in.History...)
	sort.SliceStable(history, func(i, j int) bool { return history[i].Date.Before(history[j].Date) })

	basis := decimal.NewFromInt(int64(conv.DayCountBasis))
	dailyRate := in.AnnualRatePercent.Div(hundred).Div(basis)

	sum := decimal.Zero
	for i, point := range history {
		from := point.Date
		if from.Before(in.PeriodStart) {
			from = in.PeriodStart
		}
		to := in.PeriodEnd
		if i+1 < len(history) && history[i+1].Date.Before(to) {
			to = history[i+1].Date
		}
		if !to.After(from) {
			continue
		}
		days := daysBetween(from, to)
		sum = sum.Add(point.Balance.Mul(dailyRate).Mul(decimal.NewFromInt(days)))
	}
	return sum.Round(conv.Scale), nil
}

// NextPostingDate returns the first frequency boundary strictly after the
// given date. Boundaries are the last day of the month, quarter, or year.
func NextPostingDate(freq PostingFrequency, after time.Time) time.Time {
	year, month, _ := after.Date()
	switch freq {
	case PostQuarterly:
		// advance to the end month of the current quarter
		endMonth := ((month-1)/3)*3 + 3
		boundary := endOfMonth(year, endMonth, after.Location())
		if boundary.After(after) {
			return boundary
		}
		return endOfMonth(year, endMonth+3, after.Location())
	case PostAnnually:
		boundary := endOfMonth(year, time.December, after.Location())
		if boundary.After(after) {
			return boundary
		}
		return endOfMonth(year+1, time.December, after.Location())
	default:
		boundary := endOfMonth(year, month, after.Location())
		if boundary.After(after) {
			return boundary
		}
		return endOfMonth(year, month+1, after.Location())
	}
}

// PrevPostingDate returns the last frequency boundary on or before the
// given date, or the zero time when the date precedes every boundary of
// its year context.
func PrevPostingDate(freq PostingFrequency, onOrBefore time.Time) time.Time {
	year, month, _ := onOrBefore.Date()
	switch freq {
	case PostQuarterly:
		endMonth := ((month-1)/3)*3 + 3
		boundary := endOfMonth(year, endMonth, onOrBefore.Location())
		if !boundary.After(onOrBefore) {
			return boundary
		}
		return endOfMonth(year, endMonth-3, onOrBefore.Location())
	case PostAnnually:
		boundary := endOfMonth(year, time.December, onOrBefore.Location())
		if !boundary.After(onOrBefore) {
			return boundary
		}
		return endOfMonth(year-1, time.December, onOrBefore.Location())
	default:
		boundary := endOfMonth(year, month, onOrBefore.Location())
		if !boundary.After(onOrBefore) {
			return boundary
		}
		return endOfMonth(year, month-1, onOrBefore.Location())
	}
}

func endOfMonth(year int, month time.Month, loc *time.Location) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, loc).AddDate(0, 0, -1)
}

// daysBetween counts calendar days, immune to DST offsets in the inputs.
func daysBetween(from, to time.Time) int64 {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int64(t.Sub(f) / (24 * time.Hour))
}
