package statement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopfin/coopfin/internal/ledger/accounts"
	"github.com/coopfin/coopfin/internal/ledger/shared"
)

// AccountResolver supplies the account metadata needed to sign balances.
type AccountResolver interface {
	GetByID(ctx context.Context, tenantID, id int64) (accounts.Account, error)
}

// Query bounds a statement request. From/To are inclusive dates; Limit caps
// the number of replayed lines so long-lived accounts cannot blow memory.
type Query struct {
	TenantID  int64
	AccountID int64
	From      time.Time
	To        time.Time
	Limit     int
}

const defaultLineLimit = 500

type Service struct {
	repo     Repository
	resolver AccountResolver
	cache    *Cache
	maxLines int
}

func NewService(repo Repository, resolver AccountResolver) *Service {
	return &Service{repo: repo, resolver: resolver, maxLines: defaultLineLimit}
}

// WithCache enables redis-backed memoization of computed statements.
func (s *Service) WithCache(cache *Cache) *Service {
	s.cache = cache
	return s
}

// WithMaxLines overrides the per-statement line cap.
func (s *Service) WithMaxLines(n int) *Service {
	if n > 0 {
		s.maxLines = n
	}
	return s
}

// Statement replays postings in (date, entry) order to reconstruct opening,
// running, and closing balances. Repeated calls on unchanged data return
// identical output: the sort order is total across every ordering field.
func (s *Service) Statement(ctx context.Context, q Query) (Statement, error) {
	if q.TenantID == 0 || q.AccountID == 0 {
		return Statement{}, fmt.Errorf("%w: tenant and account required", shared.ErrValidation)
	}
	if q.From.IsZero() {
		q.From = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if q.To.IsZero() {
		// Day precision keeps the cache key (and output) stable across
		// repeated open-ended queries on the same day.
		now := time.Now().UTC()
		q.To = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	if q.To.Before(q.From) {
		return Statement{}, fmt.Errorf("%w: range end before start", shared.ErrValidation)
	}
	if q.Limit <= 0 || q.Limit > s.maxLines {
		q.Limit = s.maxLines
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, q); ok {
			return cached, nil
		}
	}

	account, err := s.resolver.GetByID(ctx, q.TenantID, q.AccountID)
	if err != nil {
		return Statement{}, err
	}

	debitBefore, creditBefore, err := s.repo.SumBefore(ctx, q.TenantID, q.AccountID, q.From)
	if err != nil {
		return Statement{}, err
	}
	opening := SignedAmount(account.Type, debitBefore, creditBefore)

	rows, err := s.repo.ListRange(ctx, q.TenantID, q.AccountID, q.From, q.To, q.Limit)
	if err != nil {
		return Statement{}, err
	}

	out := replay(account, q.From, q.To, opening, rows)

	if s.cache != nil {
		s.cache.Put(ctx, q, out)
	}
	return out, nil
}

// History replays every posting in the window with no line cap and no cache.
// Interest accrual feeds on it: a truncated history would silently misstate
// the accrued amount.
func (s *Service) History(ctx context.Context, tenantID, accountID int64, from, to time.Time) (Statement, error) {
	if tenantID == 0 || accountID == 0 {
		return Statement{}, fmt.Errorf("%w: tenant and account required", shared.ErrValidation)
	}
	if to.Before(from) {
		return Statement{}, fmt.Errorf("%w: range end before start", shared.ErrValidation)
	}
	account, err := s.resolver.GetByID(ctx, tenantID, accountID)
	if err != nil {
		return Statement{}, err
	}
	debitBefore, creditBefore, err := s.repo.SumBefore(ctx, tenantID, accountID, from)
	if err != nil {
		return Statement{}, err
	}
	opening := SignedAmount(account.Type, debitBefore, creditBefore)
	rows, err := s.repo.ListAll(ctx, tenantID, accountID, from, to)
	if err != nil {
		return Statement{}, err
	}
	return replay(account, from, to, opening, rows), nil
}

func replay(account accounts.Account, from, to time.Time, opening decimal.Decimal, rows []PostingRow) Statement {
	out := Statement{
		AccountID:      account.ID,
		AccountCode:    account.Code,
		From:           from,
		To:             to,
		OpeningBalance: opening,
		ClosingBalance: opening,
	}
	running := opening
	for _, row := range rows {
		running = running.Add(SignedAmount(account.Type, row.Debit, row.Credit))
		out.Lines = append(out.Lines, Line{
			Date:           row.Date,
			EntryNumber:    row.EntryNumber,
			Description:    row.Description,
			Debit:          row.Debit,
			Credit:         row.Credit,
			RunningBalance: running,
		})
		out.TotalDebit = out.TotalDebit.Add(row.Debit)
		out.TotalCredit = out.TotalCredit.Add(row.Credit)
	}
	out.ClosingBalance = running
	return out
}

// Balance is the closing balance over the whole of history up to now.
func (s *Service) Balance(ctx context.Context, tenantID, accountID int64) (decimal.Decimal, error) {
	account, err := s.resolver.GetByID(ctx, tenantID, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	debit, credit, err := s.repo.SumBefore(ctx, tenantID, accountID, farFuture)
	if err != nil {
		return decimal.Zero, err
	}
	return SignedAmount(account.Type, debit, credit), nil
}

var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// SignedAmount converts a debit/credit pair into a balance delta for an
// account type: debits increase ASSET and EXPENSE accounts, credits
// increase LIABILITY, EQUITY and INCOME accounts.
func SignedAmount(accountType accounts.AccountType, debit, credit decimal.Decimal) decimal.Decimal {
	if accountType.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}
