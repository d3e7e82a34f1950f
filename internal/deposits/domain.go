package deposits

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopfin/coopfin/internal/finance/accrual"
)

// ProductKind distinguishes on-demand savings from term deposits.
type ProductKind string

const (
	KindSavings      ProductKind = "SAVINGS"
	KindFixedDeposit ProductKind = "FIXED_DEPOSIT"
)

// AccountStatus tracks a deposit account lifecycle.
type AccountStatus string

const (
	AccountActive AccountStatus = "ACTIVE"
	AccountClosed AccountStatus = "CLOSED"
)

var (
	// ErrProductNotFound indicates a missing deposit product.
	ErrProductNotFound = errors.New("deposits: product not found")
	// ErrAccountNotFound indicates a missing deposit account.
	ErrAccountNotFound = errors.New("deposits: account not found")
	// ErrAccountClosed indicates the account no longer accepts transactions.
	ErrAccountClosed = errors.New("deposits: account closed")
	// ErrInsufficientFunds indicates a withdrawal exceeding the ledger balance.
	ErrInsufficientFunds = errors.New("deposits: insufficient funds")
	// ErrAlreadyPosted indicates interest for the period was posted before.
	// Callers treat it as a successful no-op.
	ErrAlreadyPosted = errors.New("deposits: interest already posted for period")
	// ErrNotMatured indicates a fixed deposit closed before its term.
	ErrNotMatured = errors.New("deposits: fixed deposit not matured")
)

// Product is a savings or fixed-deposit offering. Rate, posting frequency,
// day-count and tax conventions are explicit here rather than hidden in
// calculator defaults.
type Product struct {
	ID                  int64
	TenantID            int64
	Code                string
	Name                string
	Kind                ProductKind
	AnnualRatePercent   decimal.Decimal
	PostingFrequency    accrual.PostingFrequency
	DayCountBasis       int
	TaxRatePercent      decimal.Decimal
	InterestExpenseCode string
	TaxPayableCode      string
	TermMonths          int
	CreatedAt           time.Time
}

// Convention builds the accrual convention for this product.
func (p Product) Convention() accrual.Convention {
	conv := accrual.DefaultConvention()
	if p.DayCountBasis > 0 {
		conv.DayCountBasis = p.DayCountBasis
	}
	return conv
}

// DepositAccount is one member's holding under a product. LedgerAccountID
// points at the member's liability leaf account; the deposit balance is
// always the ledger balance of that account, never a separate counter.
type DepositAccount struct {
	ID              int64
	TenantID        int64
	MemberID        int64
	ProductID       int64
	Ref             uuid.UUID
	LedgerAccountID int64
	Status          AccountStatus
	OpenedAt        time.Time
	MaturesAt       *time.Time
	ClosedAt        *time.Time
}

// AccountWithProduct joins an account with its product for the interest run.
type AccountWithProduct struct {
	Account DepositAccount
	Product Product
}

// RunSummary reports one interest run's outcome.
type RunSummary struct {
	TenantID int64
	AsOf     time.Time
	Posted   int
	Skipped  int
	Failed   int
}
