package payroll

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrRunNotFound indicates a missing payroll run.
	ErrRunNotFound = errors.New("payroll: run not found")
	// ErrEmptyRun indicates a run with no lines to export.
	ErrEmptyRun = errors.New("payroll: run has no lines")
)

// PayrollLine is one member's pay within a run.
type PayrollLine struct {
	ID         int64
	RunID      int64
	MemberID   int64
	Gross      decimal.Decimal
	Deductions decimal.Decimal
	Net        decimal.Decimal
}

// PayrollRun is one month's payroll for a tenant. Ref source-links the GL
// export so re-exporting the same run cannot double-post.
type PayrollRun struct {
	ID          int64
	TenantID    int64
	Ref         uuid.UUID
	PeriodYear  int
	PeriodMonth time.Month
	ExportedAt  *time.Time
	CreatedAt   time.Time
	Lines       []PayrollLine
}

// Totals sums the run's lines.
func (r PayrollRun) Totals() (gross, deductions, net decimal.Decimal) {
	for _, line := range r.Lines {
		gross = gross.Add(line.Gross)
		deductions = deductions.Add(line.Deductions)
		net = net.Add(line.Net)
	}
	return gross, deductions, net
}

// GLConfig names the accounts a payroll export posts to.
type GLConfig struct {
	SalaryExpenseCode    string
	DeductionPayableCode string
	CashCode             string
}
