package deposits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/coopfin/coopfin/internal/finance/accrual"
	"github.com/coopfin/coopfin/internal/ledger/journal"
	ledgershared "github.com/coopfin/coopfin/internal/ledger/shared"
	"github.com/coopfin/coopfin/internal/shared"
)

// runConcurrency bounds the per-account fan-out of one interest run.
const runConcurrency = 4

// RunInput triggers one interest run for a tenant.
type RunInput struct {
	TenantID int64
	AsOf     time.Time
	ActorID  int64
}

// RunInterest accrues and posts interest for every active account whose
// posting-frequency boundary has passed. The run is safe to repeat and safe
// to race: a redis claim keeps concurrent runs off the same account, and the
// interest-postings unique key plus deterministic journal source ids make a
// second posting of the same period a no-op.
func (s *Service) RunInterest(ctx context.Context, in RunInput) (RunSummary, error) {
	if in.TenantID == 0 {
		return RunSummary{}, fmt.Errorf("%w: tenant required", ledgershared.ErrValidation)
	}
	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}
	summary := RunSummary{TenantID: in.TenantID, AsOf: asOf}

	items, err := s.repo.ListActiveWithProducts(ctx, in.TenantID)
	if err != nil {
		return summary, err
	}

	type outcome int
	const (
		outcomePosted outcome = iota
		outcomeSkipped
		outcomeFailed
	)
	results := make([]outcome, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runConcurrency)
	for i, item := range items {
		g.Go(func() error {
			periodEnd := accrual.PrevPostingDate(item.Product.PostingFrequency, asOf)
			err := s.accrueAndPost(gctx, item, periodEnd, in.ActorID)
			switch {
			case err == nil:
				results[i] = outcomePosted
			case errors.Is(err, ErrAlreadyPosted), errors.Is(err, errSkipped):
				results[i] = outcomeSkipped
			default:
				results[i] = outcomeFailed
				return err
			}
			return nil
		})
	}
	err = g.Wait()
	for _, res := range results {
		switch res {
		case outcomePosted:
			summary.Posted++
		case outcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}
	return summary, err
}

// RunInterestAll runs interest for every tenant with active accounts. The
// scheduled daily run goes through here; per-tenant failures are collected
// rather than aborting the remaining tenants.
func (s *Service) RunInterestAll(ctx context.Context, asOf time.Time, actorID int64) ([]RunSummary, error) {
	tenants, err := s.repo.ListTenants(ctx)
	if err != nil {
		return nil, err
	}
	var (
		summaries []RunSummary
		errs      []error
	)
	for _, tenantID := range tenants {
		summary, err := s.RunInterest(ctx, RunInput{TenantID: tenantID, AsOf: asOf, ActorID: actorID})
		summaries = append(summaries, summary)
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %d: %w", tenantID, err))
		}
	}
	return summaries, errors.Join(errs...)
}

// errSkipped marks an account the run passed over without posting: nothing
// due yet, zero interest, or another worker holds the claim.
var errSkipped = errors.New("deposits: skipped")

func (s *Service) accrueAndPost(ctx context.Context, item AccountWithProduct, periodEnd time.Time, actorID int64) error {
	account := item.Account
	if !periodEnd.After(account.OpenedAt) {
		return errSkipped
	}

	lastEnd, posted, err := s.repo.LastPostedPeriodEnd(ctx, account.TenantID, account.ID)
	if err != nil {
		return err
	}
	periodStart := account.OpenedAt
	if posted {
		if !periodEnd.After(lastEnd) {
			return ErrAlreadyPosted
		}
		periodStart = lastEnd
	}

	claimKey := shared.InterestClaimKey(account.TenantID, account.ID, periodEnd)
	ok, err := s.claims.Acquire(ctx, claimKey)
	if err != nil {
		return err
	}
	if !ok {
		// Another run owns this account+period. Not an error.
		return errSkipped
	}
	defer s.claims.Release(ctx, claimKey)

	history, err := s.balanceHistory(ctx, item, periodStart, periodEnd)
	if err != nil {
		return err
	}
	amount, err := accrual.Accrue(accrual.AccrueInput{
		History:           history,
		AnnualRatePercent: item.Product.AnnualRatePercent,
		Method:            accrual.MethodDailyBalance,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		Convention:        item.Product.Convention(),
	})
	if err != nil {
		return err
	}
	if !amount.IsPositive() {
		return errSkipped
	}

	tax := decimal.Zero
	if item.Product.TaxRatePercent.IsPositive() {
		tax = amount.Mul(item.Product.TaxRatePercent).Div(decimal.NewFromInt(100)).Round(journal.MoneyScale)
	}
	net := amount.Sub(tax)

	lines := []journal.PostingLineInput{
		{AccountCode: item.Product.InterestExpenseCode, Debit: amount},
		{AccountID: account.LedgerAccountID, Credit: net},
	}
	if tax.IsPositive() {
		lines = append(lines, journal.PostingLineInput{AccountCode: item.Product.TaxPayableCode, Credit: tax})
	}

	// The source id is derived from the account ref and period end, so the
	// same period can never link twice even if the register write below
	// is lost to a crash.
	entry, err := s.journal.Post(ctx, journal.PostingInput{
		TenantID:     account.TenantID,
		Date:         periodEnd,
		Description:  fmt.Sprintf("Interest %s to %s, account #%d", periodStart.Format("2006-01-02"), periodEnd.Format("2006-01-02"), account.ID),
		SourceModule: "deposit:interest",
		SourceID:     interestRef(account.Ref, periodEnd),
		CreatedBy:    actorID,
		Lines:        lines,
	})
	if err != nil {
		if errors.Is(err, ledgershared.ErrSourceAlreadyLinked) {
			return ErrAlreadyPosted
		}
		return err
	}
	if err := s.repo.RecordInterestPosting(ctx, account.TenantID, account.ID, periodStart, periodEnd, amount, entry.ID); err != nil {
		return err
	}
	return nil
}

// postAccruedInterest posts interest through an arbitrary cut-off, used by
// account closure to settle the stub period.
func (s *Service) postAccruedInterest(ctx context.Context, item AccountWithProduct, until time.Time, actorID int64) error {
	err := s.accrueAndPost(ctx, item, until, actorID)
	if errors.Is(err, errSkipped) {
		return nil
	}
	return err
}

func interestRef(accountRef uuid.UUID, periodEnd time.Time) uuid.UUID {
	return uuid.NewSHA1(accountRef, []byte("interest:"+periodEnd.Format("2006-01-02")))
}
