package loans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopfin/coopfin/internal/finance/amort"
	"github.com/coopfin/coopfin/internal/ledger/journal"
	ledgershared "github.com/coopfin/coopfin/internal/ledger/shared"
)

// JournalPort is the slice of the journal engine this orchestrator uses.
type JournalPort interface {
	Post(ctx context.Context, input journal.PostingInput) (journal.JournalEntry, error)
}

// CreateInput carries a new loan application.
type CreateInput struct {
	TenantID          int64
	MemberID          int64
	Amount            decimal.Decimal
	AnnualRatePercent decimal.Decimal
	TenureMonths      int
}

// RepaymentInput identifies the installment being settled.
type RepaymentInput struct {
	TenantID int64
	LoanID   int64
	Number   int
	ActorID  int64
	PaidAt   time.Time
}

type Service struct {
	repo    Repository
	journal JournalPort
	gl      GLConfig
	conv    amort.Convention
	now     func() time.Time
}

func NewService(repo Repository, journalPort JournalPort, gl GLConfig) *Service {
	return &Service{repo: repo, journal: journalPort, gl: gl, conv: amort.DefaultConvention(), now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateApplication records a pending application. No ledger activity yet.
func (s *Service) CreateApplication(ctx context.Context, in CreateInput) (LoanApplication, error) {
	if in.TenantID == 0 || in.MemberID == 0 {
		return LoanApplication{}, fmt.Errorf("%w: tenant and member required", ledgershared.ErrValidation)
	}
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return LoanApplication{}, amort.ErrInvalidPrincipal
	}
	if in.TenureMonths <= 0 {
		return LoanApplication{}, amort.ErrInvalidTenure
	}
	if in.AnnualRatePercent.IsNegative() {
		return LoanApplication{}, amort.ErrInvalidRate
	}
	return s.repo.Insert(ctx, LoanApplication{
		TenantID:          in.TenantID,
		MemberID:          in.MemberID,
		Ref:               uuid.New(),
		Amount:            in.Amount,
		AnnualRatePercent: in.AnnualRatePercent,
		TenureMonths:      in.TenureMonths,
		Status:            LoanPending,
		AppliedAt:         s.now(),
	})
}

// Approve moves a pending application to approved and materializes its
// amortization schedule from the expected disbursement date. The stages run
// in a fixed order: guard, calculate, persist.
func (s *Service) Approve(ctx context.Context, tenantID, loanID int64, disbursementDate time.Time) (LoanApplication, []ScheduledInstallment, error) {
	loan, err := s.repo.Get(ctx, tenantID, loanID)
	if err != nil {
		return LoanApplication{}, nil, err
	}
	if loan.Status != LoanPending {
		return LoanApplication{}, nil, fmt.Errorf("%w: %s cannot be approved", ErrInvalidTransition, loan.Status)
	}
	if disbursementDate.IsZero() {
		disbursementDate = s.now()
	}

	schedule, err := amort.Schedule(amort.ScheduleInput{
		Principal:         loan.Amount,
		AnnualRatePercent: loan.AnnualRatePercent,
		TenureMonths:      loan.TenureMonths,
		StartDate:         disbursementDate,
		Convention:        s.conv,
	})
	if err != nil {
		return LoanApplication{}, nil, err
	}
	if err := s.repo.ReplaceSchedule(ctx, loan.ID, schedule); err != nil {
		return LoanApplication{}, nil, err
	}
	approvedAt := s.now()
	if err := s.repo.UpdateStatus(ctx, tenantID, loan.ID, LoanApproved, approvedAt); err != nil {
		return LoanApplication{}, nil, err
	}
	loan.Status = LoanApproved
	loan.ApprovedAt = &approvedAt
	persisted, err := s.repo.ListSchedule(ctx, loan.ID)
	if err != nil {
		return LoanApplication{}, nil, err
	}
	return loan, persisted, nil
}

// Reject closes a pending application without ledger activity.
func (s *Service) Reject(ctx context.Context, tenantID, loanID int64) error {
	loan, err := s.repo.Get(ctx, tenantID, loanID)
	if err != nil {
		return err
	}
	if loan.Status != LoanPending {
		return fmt.Errorf("%w: %s cannot be rejected", ErrInvalidTransition, loan.Status)
	}
	return s.repo.UpdateStatus(ctx, tenantID, loanID, LoanRejected, s.now())
}

// Disburse pays the approved amount out: debit the member's loan receivable,
// credit cash. The posting is source-linked to the loan's ref, so a repeated
// disbursement attempt hits the link constraint instead of double-paying.
func (s *Service) Disburse(ctx context.Context, tenantID, loanID, actorID int64, date time.Time) (LoanApplication, error) {
	loan, err := s.repo.Get(ctx, tenantID, loanID)
	if err != nil {
		return LoanApplication{}, err
	}
	if loan.Status != LoanApproved {
		return LoanApplication{}, fmt.Errorf("%w: %s cannot be disbursed", ErrInvalidTransition, loan.Status)
	}
	if date.IsZero() {
		date = s.now()
	}
	_, err = s.journal.Post(ctx, journal.PostingInput{
		TenantID:     tenantID,
		Date:         date,
		Description:  fmt.Sprintf("Loan disbursement #%d", loan.ID),
		SourceModule: "loan:disbursement",
		SourceID:     loan.Ref,
		CreatedBy:    actorID,
		Lines: []journal.PostingLineInput{
			{AccountCode: s.gl.LoanReceivableCode, Debit: loan.Amount},
			{AccountCode: s.gl.CashCode, Credit: loan.Amount},
		},
	})
	if err != nil && !errors.Is(err, ledgershared.ErrSourceAlreadyLinked) {
		return LoanApplication{}, err
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, loan.ID, LoanDisbursed, date); err != nil {
		return LoanApplication{}, err
	}
	loan.Status = LoanDisbursed
	loan.DisbursedAt = &date
	return loan, nil
}

// RecordRepayment settles one installment: debit cash for the total, credit
// the receivable for the principal and interest income for the interest.
func (s *Service) RecordRepayment(ctx context.Context, in RepaymentInput) (ScheduledInstallment, error) {
	loan, err := s.repo.Get(ctx, in.TenantID, in.LoanID)
	if err != nil {
		return ScheduledInstallment{}, err
	}
	if loan.Status != LoanDisbursed {
		return ScheduledInstallment{}, fmt.Errorf("%w: %s cannot accept repayments", ErrInvalidTransition, loan.Status)
	}
	schedule, err := s.repo.ListSchedule(ctx, loan.ID)
	if err != nil {
		return ScheduledInstallment{}, err
	}
	var target *ScheduledInstallment
	for i := range schedule {
		if schedule[i].Number == in.Number {
			target = &schedule[i]
			break
		}
	}
	if target == nil {
		return ScheduledInstallment{}, ErrInstallmentNotFound
	}
	if target.Status == amort.InstallmentPaid {
		return ScheduledInstallment{}, ErrInstallmentPaid
	}
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	lines := []journal.PostingLineInput{
		{AccountCode: s.gl.CashCode, Debit: target.Total},
		{AccountCode: s.gl.LoanReceivableCode, Credit: target.Principal},
	}
	if target.Interest.IsPositive() {
		lines = append(lines, journal.PostingLineInput{AccountCode: s.gl.InterestIncomeCode, Credit: target.Interest})
	}
	_, err = s.journal.Post(ctx, journal.PostingInput{
		TenantID:     in.TenantID,
		Date:         paidAt,
		Description:  fmt.Sprintf("Loan #%d installment %d repayment", loan.ID, target.Number),
		SourceModule: "loan:repayment",
		SourceID:     repaymentRef(loan.Ref, target.Number),
		CreatedBy:    in.ActorID,
		Lines:        lines,
	})
	if err != nil && !errors.Is(err, ledgershared.ErrSourceAlreadyLinked) {
		return ScheduledInstallment{}, err
	}
	if err := s.repo.MarkInstallmentPaid(ctx, loan.ID, target.Number, paidAt); err != nil {
		return ScheduledInstallment{}, err
	}
	target.Status = amort.InstallmentPaid
	target.PaidAt = &paidAt
	return *target, nil
}

// Get returns one application with its schedule.
func (s *Service) Get(ctx context.Context, tenantID, loanID int64) (LoanApplication, []ScheduledInstallment, error) {
	loan, err := s.repo.Get(ctx, tenantID, loanID)
	if err != nil {
		return LoanApplication{}, nil, err
	}
	schedule, err := s.repo.ListSchedule(ctx, loan.ID)
	if err != nil {
		return LoanApplication{}, nil, err
	}
	return loan, schedule, nil
}

// List returns applications, optionally filtered by status.
func (s *Service) List(ctx context.Context, tenantID int64, status LoanStatus) ([]LoanApplication, error) {
	return s.repo.List(ctx, tenantID, status)
}

// MarkOverdue flips pending installments past due as of the given date.
func (s *Service) MarkOverdue(ctx context.Context, tenantID int64, asOf time.Time) (int64, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	return s.repo.MarkOverdue(ctx, tenantID, asOf)
}

// repaymentRef derives a stable per-installment UUID from the loan ref, so
// each installment's repayment posting is individually idempotent.
func repaymentRef(loanRef uuid.UUID, number int) uuid.UUID {
	return uuid.NewSHA1(loanRef, []byte(fmt.Sprintf("repayment:%d", number)))
}
