package loans

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopfin/coopfin/internal/finance/amort"
)

// LoanStatus tracks the application lifecycle.
type LoanStatus string

const (
	LoanPending   LoanStatus = "PENDING"
	LoanApproved  LoanStatus = "APPROVED"
	LoanDisbursed LoanStatus = "DISBURSED"
	LoanRejected  LoanStatus = "REJECTED"
	LoanClosed    LoanStatus = "CLOSED"
)

var (
	// ErrLoanNotFound indicates a missing application.
	ErrLoanNotFound = errors.New("loans: application not found")
	// ErrInvalidTransition indicates an action not valid for the current status.
	ErrInvalidTransition = errors.New("loans: invalid status transition")
	// ErrInstallmentNotFound indicates a missing schedule row.
	ErrInstallmentNotFound = errors.New("loans: installment not found")
	// ErrInstallmentPaid indicates the installment has already been settled.
	ErrInstallmentPaid = errors.New("loans: installment already paid")
)

// LoanApplication is a member's loan from application through repayment.
// Ref is the stable UUID used to source-link ledger postings.
type LoanApplication struct {
	ID                int64
	TenantID          int64
	MemberID          int64
	Ref               uuid.UUID
	Amount            decimal.Decimal
	AnnualRatePercent decimal.Decimal
	TenureMonths      int
	Status            LoanStatus
	AppliedAt         time.Time
	ApprovedAt        *time.Time
	DisbursedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ScheduledInstallment is one persisted amortization row for a loan.
type ScheduledInstallment struct {
	ID        int64
	LoanID    int64
	Number    int
	DueDate   time.Time
	Principal decimal.Decimal
	Interest  decimal.Decimal
	Total     decimal.Decimal
	Status    amort.InstallmentStatus
	PaidAt    *time.Time
}

// GLConfig names the chart-of-accounts codes loan postings target. The
// chart shape is fixed per tenant, so this is wired once at startup.
type GLConfig struct {
	LoanReceivableCode string
	CashCode           string
	InterestIncomeCode string
}
