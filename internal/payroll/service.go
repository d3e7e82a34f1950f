package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopfin/coopfin/internal/ledger/journal"
	ledgershared "github.com/coopfin/coopfin/internal/ledger/shared"
)

// JournalPort is the slice of the journal engine this orchestrator uses.
type JournalPort interface {
	Post(ctx context.Context, input journal.PostingInput) (journal.JournalEntry, error)
}

// LineInput is one member's pay in a CreateRun request.
type LineInput struct {
	MemberID   int64
	Gross      decimal.Decimal
	Deductions decimal.Decimal
}

// CreateInput describes a payroll run to record.
type CreateInput struct {
	TenantID    int64
	PeriodYear  int
	PeriodMonth time.Month
	Lines       []LineInput
}

type Service struct {
	repo    Repository
	journal JournalPort
	gl      GLConfig
	now     func() time.Time
}

func NewService(repo Repository, journalPort JournalPort, gl GLConfig) *Service {
	return &Service{repo: repo, journal: journalPort, gl: gl, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateRun records a payroll run. Net pay is derived, never supplied.
func (s *Service) CreateRun(ctx context.Context, in CreateInput) (PayrollRun, error) {
	if in.TenantID == 0 {
		return PayrollRun{}, fmt.Errorf("%w: tenant required", ledgershared.ErrValidation)
	}
	if in.PeriodYear < 2000 || in.PeriodMonth < time.January || in.PeriodMonth > time.December {
		return PayrollRun{}, fmt.Errorf("%w: invalid period", ledgershared.ErrValidation)
	}
	if len(in.Lines) == 0 {
		return PayrollRun{}, ErrEmptyRun
	}
	run := PayrollRun{
		TenantID:    in.TenantID,
		Ref:         uuid.New(),
		PeriodYear:  in.PeriodYear,
		PeriodMonth: in.PeriodMonth,
	}
	for _, line := range in.Lines {
		if line.Gross.IsNegative() || line.Deductions.IsNegative() {
			return PayrollRun{}, fmt.Errorf("%w: negative pay for member %d", ledgershared.ErrValidation, line.MemberID)
		}
		if line.Deductions.GreaterThan(line.Gross) {
			return PayrollRun{}, fmt.Errorf("%w: deductions exceed gross for member %d", ledgershared.ErrValidation, line.MemberID)
		}
		run.Lines = append(run.Lines, PayrollLine{
			MemberID:   line.MemberID,
			Gross:      line.Gross,
			Deductions: line.Deductions,
			Net:        line.Gross.Sub(line.Deductions),
		})
	}
	return s.repo.Insert(ctx, run)
}

// ExportToGL posts the run to the ledger: debit salary expense for gross,
// credit deductions payable and cash for the splits. The posting is
// source-linked to the run's ref; exporting twice is a no-op.
func (s *Service) ExportToGL(ctx context.Context, tenantID, runID, actorID int64) (PayrollRun, error) {
	run, err := s.repo.Get(ctx, tenantID, runID)
	if err != nil {
		return PayrollRun{}, err
	}
	if len(run.Lines) == 0 {
		return PayrollRun{}, ErrEmptyRun
	}
	gross, deductions, net := run.Totals()

	lines := []journal.PostingLineInput{
		{AccountCode: s.gl.SalaryExpenseCode, Debit: gross},
		{AccountCode: s.gl.CashCode, Credit: net},
	}
	if deductions.IsPositive() {
		lines = append(lines, journal.PostingLineInput{AccountCode: s.gl.DeductionPayableCode, Credit: deductions})
	}
	_, err = s.journal.Post(ctx, journal.PostingInput{
		TenantID:     tenantID,
		Date:         s.now(),
		Description:  fmt.Sprintf("Payroll %d-%02d", run.PeriodYear, run.PeriodMonth),
		SourceModule: "payroll:export",
		SourceID:     run.Ref,
		CreatedBy:    actorID,
		Lines:        lines,
	})
	if err != nil && !errors.Is(err, ledgershared.ErrSourceAlreadyLinked) {
		return PayrollRun{}, err
	}
	exportedAt := s.now()
	if err := s.repo.MarkExported(ctx, tenantID, run.ID, exportedAt); err != nil {
		return PayrollRun{}, err
	}
	run.ExportedAt = &exportedAt
	return run, nil
}
