package deposits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopfin/coopfin/internal/finance/accrual"
	"github.com/coopfin/coopfin/internal/finance/amort"
	"github.com/coopfin/coopfin/internal/ledger/accounts"
	"github.com/coopfin/coopfin/internal/ledger/journal"
	ledgershared "github.com/coopfin/coopfin/internal/ledger/shared"
	"github.com/coopfin/coopfin/internal/ledger/statement"
	"github.com/coopfin/coopfin/internal/shared"
)

// JournalPort is the slice of the journal engine this orchestrator uses.
type JournalPort interface {
	Post(ctx context.Context, input journal.PostingInput) (journal.JournalEntry, error)
}

// AccountsPort creates the member liability leaf account backing a deposit.
type AccountsPort interface {
	Create(ctx context.Context, in accounts.CreateInput) (accounts.Account, error)
}

// StatementPort reads ledger balances and balance histories. History is the
// uncapped replay; accrual must always see the whole window.
type StatementPort interface {
	History(ctx context.Context, tenantID, accountID int64, from, to time.Time) (statement.Statement, error)
	Balance(ctx context.Context, tenantID, accountID int64) (decimal.Decimal, error)
}

// GLConfig names the tenant-level accounts deposit money moves through.
type GLConfig struct {
	CashCode string
}

type Service struct {
	repo       Repository
	journal    JournalPort
	accounts   AccountsPort
	statements StatementPort
	claims     *shared.RunClaims
	gl         GLConfig
	now        func() time.Time
}

func NewService(repo Repository, journalPort JournalPort, accountsPort AccountsPort, statements StatementPort, claims *shared.RunClaims, gl GLConfig) *Service {
	return &Service{
		repo:       repo,
		journal:    journalPort,
		accounts:   accountsPort,
		statements: statements,
		claims:     claims,
		gl:         gl,
		now:        time.Now,
	}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateProduct registers a savings or fixed-deposit offering.
func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if p.TenantID == 0 || p.Code == "" {
		return Product{}, fmt.Errorf("%w: tenant and code required", ledgershared.ErrValidation)
	}
	if p.Kind != KindSavings && p.Kind != KindFixedDeposit {
		return Product{}, fmt.Errorf("%w: unknown product kind %q", ledgershared.ErrValidation, p.Kind)
	}
	if p.AnnualRatePercent.IsNegative() || p.TaxRatePercent.IsNegative() {
		return Product{}, fmt.Errorf("%w: rates must not be negative", ledgershared.ErrValidation)
	}
	if p.Kind == KindFixedDeposit && p.TermMonths <= 0 {
		return Product{}, fmt.Errorf("%w: fixed deposits need a term", ledgershared.ErrValidation)
	}
	return s.repo.InsertProduct(ctx, p)
}

// OpenInput carries the fields to open a member deposit account.
type OpenInput struct {
	TenantID  int64
	MemberID  int64
	ProductID int64
}

// OpenAccount opens a deposit account and creates the member's liability
// leaf account in the ledger. The deposit balance lives only there.
func (s *Service) OpenAccount(ctx context.Context, in OpenInput) (DepositAccount, error) {
	if in.TenantID == 0 || in.MemberID == 0 {
		return DepositAccount{}, fmt.Errorf("%w: tenant and member required", ledgershared.ErrValidation)
	}
	product, err := s.repo.GetProduct(ctx, in.TenantID, in.ProductID)
	if err != nil {
		return DepositAccount{}, err
	}
	ref := uuid.New()
	ledgerAccount, err := s.accounts.Create(ctx, accounts.CreateInput{
		TenantID: in.TenantID,
		Code:     fmt.Sprintf("DEP-%s-%d-%s", product.Code, in.MemberID, ref.String()[:8]),
		Name:     fmt.Sprintf("%s deposit, member %d", product.Name, in.MemberID),
		Type:     accounts.AccountTypeLiability,
	})
	if err != nil {
		return DepositAccount{}, err
	}
	openedAt := s.now()
	account := DepositAccount{
		TenantID:        in.TenantID,
		MemberID:        in.MemberID,
		ProductID:       product.ID,
		Ref:             ref,
		LedgerAccountID: ledgerAccount.ID,
		Status:          AccountActive,
		OpenedAt:        openedAt,
	}
	if product.Kind == KindFixedDeposit {
		maturity := amort.AddMonthsClamped(openedAt, product.TermMonths)
		account.MaturesAt = &maturity
	}
	return s.repo.InsertAccount(ctx, account)
}

// Deposit credits the member's liability account against cash.
func (s *Service) Deposit(ctx context.Context, tenantID, accountID, actorID int64, amount decimal.Decimal, date time.Time) (journal.JournalEntry, error) {
	account, err := s.activeAccount(ctx, tenantID, accountID)
	if err != nil {
		return journal.JournalEntry{}, err
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return journal.JournalEntry{}, fmt.Errorf("%w: amount must be positive", ledgershared.ErrValidation)
	}
	if date.IsZero() {
		date = s.now()
	}
	return s.journal.Post(ctx, journal.PostingInput{
		TenantID:     tenantID,
		Date:         date,
		Description:  fmt.Sprintf("Deposit to account #%d", account.ID),
		SourceModule: "deposit:credit",
		SourceID:     uuid.New(),
		CreatedBy:    actorID,
		Lines: []journal.PostingLineInput{
			{AccountCode: s.gl.CashCode, Debit: amount},
			{AccountID: account.LedgerAccountID, Credit: amount},
		},
	})
}

// Withdraw debits the member's liability account against cash, refusing to
// take the ledger balance negative.
func (s *Service) Withdraw(ctx context.Context, tenantID, accountID, actorID int64, amount decimal.Decimal, date time.Time) (journal.JournalEntry, error) {
	account, err := s.activeAccount(ctx, tenantID, accountID)
	if err != nil {
		return journal.JournalEntry{}, err
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return journal.JournalEntry{}, fmt.Errorf("%w: amount must be positive", ledgershared.ErrValidation)
	}
	balance, err := s.statements.Balance(ctx, tenantID, account.LedgerAccountID)
	if err != nil {
		return journal.JournalEntry{}, err
	}
	if balance.LessThan(amount) {
		return journal.JournalEntry{}, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, balance, amount)
	}
	if date.IsZero() {
		date = s.now()
	}
	return s.journal.Post(ctx, journal.PostingInput{
		TenantID:     tenantID,
		Date:         date,
		Description:  fmt.Sprintf("Withdrawal from account #%d", account.ID),
		SourceModule: "deposit:debit",
		SourceID:     uuid.New(),
		CreatedBy:    actorID,
		Lines: []journal.PostingLineInput{
			{AccountID: account.LedgerAccountID, Debit: amount},
			{AccountCode: s.gl.CashCode, Credit: amount},
		},
	})
}

// CloseAccount settles a deposit account: posts any final accrued interest,
// pays out the remaining balance, and marks the account closed. Fixed
// deposits refuse to close before maturity.
func (s *Service) CloseAccount(ctx context.Context, tenantID, accountID, actorID int64) error {
	account, err := s.activeAccount(ctx, tenantID, accountID)
	if err != nil {
		return err
	}
	product, err := s.repo.GetProduct(ctx, tenantID, account.ProductID)
	if err != nil {
		return err
	}
	closeAt := s.now()
	if product.Kind == KindFixedDeposit && account.MaturesAt != nil && closeAt.Before(*account.MaturesAt) {
		return fmt.Errorf("%w: matures %s", ErrNotMatured, account.MaturesAt.Format("2006-01-02"))
	}

	if err := s.postAccruedInterest(ctx, AccountWithProduct{Account: account, Product: product}, closeAt, actorID); err != nil && !errors.Is(err, ErrAlreadyPosted) {
		return err
	}

	balance, err := s.statements.Balance(ctx, tenantID, account.LedgerAccountID)
	if err != nil {
		return err
	}
	if balance.IsPositive() {
		_, err = s.journal.Post(ctx, journal.PostingInput{
			TenantID:     tenantID,
			Date:         closeAt,
			Description:  fmt.Sprintf("Closure payout, account #%d", account.ID),
			SourceModule: "deposit:closure",
			SourceID:     uuid.NewSHA1(account.Ref, []byte("closure")),
			CreatedBy:    actorID,
			Lines: []journal.PostingLineInput{
				{AccountID: account.LedgerAccountID, Debit: balance},
				{AccountCode: s.gl.CashCode, Credit: balance},
			},
		})
		if err != nil && !errors.Is(err, ledgershared.ErrSourceAlreadyLinked) {
			return err
		}
	}
	return s.repo.CloseAccount(ctx, tenantID, account.ID, closeAt)
}

// GetAccount returns one account with its current ledger balance.
func (s *Service) GetAccount(ctx context.Context, tenantID, accountID int64) (DepositAccount, decimal.Decimal, error) {
	account, err := s.repo.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return DepositAccount{}, decimal.Zero, err
	}
	balance, err := s.statements.Balance(ctx, tenantID, account.LedgerAccountID)
	if err != nil {
		return DepositAccount{}, decimal.Zero, err
	}
	return account, balance, nil
}

func (s *Service) activeAccount(ctx context.Context, tenantID, accountID int64) (DepositAccount, error) {
	account, err := s.repo.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return DepositAccount{}, err
	}
	if account.Status != AccountActive {
		return DepositAccount{}, ErrAccountClosed
	}
	return account, nil
}

// balanceHistory derives the account's balance-constant points over the
// period from the ledger itself.
func (s *Service) balanceHistory(ctx context.Context, item AccountWithProduct, from, to time.Time) ([]accrual.BalancePoint, error) {
	st, err := s.statements.History(ctx, item.Account.TenantID, item.Account.LedgerAccountID, from, to)
	if err != nil {
		return nil, err
	}
	points := []accrual.BalancePoint{{Date: from, Balance: st.OpeningBalance}}
	for _, line := range st.Lines {
		points = append(points, accrual.BalancePoint{Date: line.Date, Balance: line.RunningBalance})
	}
	return points, nil
}
