package deposits

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coopfin/coopfin/internal/finance/accrual"
	"github.com/coopfin/coopfin/internal/ledger/accounts"
	"github.com/coopfin/coopfin/internal/ledger/journal"
	ledgershared "github.com/coopfin/coopfin/internal/ledger/shared"
	"github.com/coopfin/coopfin/internal/ledger/statement"
	"github.com/coopfin/coopfin/internal/shared"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

type memoryRepo struct {
	products map[int64]Product
	accounts map[int64]DepositAccount
	postings map[string]time.Time // tenant:account -> latest period end
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products: make(map[int64]Product),
		accounts: make(map[int64]DepositAccount),
		postings: make(map[string]time.Time),
	}
}

func (r *memoryRepo) InsertProduct(ctx context.Context, p Product) (Product, error) {
	r.nextID++
	p.ID = r.nextID
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) GetProduct(ctx context.Context, tenantID, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok || p.TenantID != tenantID {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListProducts(ctx context.Context, tenantID int64) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListTenants(ctx context.Context) ([]int64, error) {
	seen := make(map[int64]bool)
	var out []int64
	for _, a := range r.accounts {
		if a.Status == AccountActive && !seen[a.TenantID] {
			seen[a.TenantID] = true
			out = append(out, a.TenantID)
		}
	}
	return out, nil
}

func (r *memoryRepo) InsertAccount(ctx context.Context, a DepositAccount) (DepositAccount, error) {
	r.nextID++
	a.ID = r.nextID
	r.accounts[a.ID] = a
	return a, nil
}

func (r *memoryRepo) GetAccount(ctx context.Context, tenantID, id int64) (DepositAccount, error) {
	a, ok := r.accounts[id]
	if !ok || a.TenantID != tenantID {
		return DepositAccount{}, ErrAccountNotFound
	}
	return a, nil
}

func (r *memoryRepo) ListActiveWithProducts(ctx context.Context, tenantID int64) ([]AccountWithProduct, error) {
	var out []AccountWithProduct
	for _, a := range r.accounts {
		if a.TenantID == tenantID && a.Status == AccountActive {
			out = append(out, AccountWithProduct{Account: a, Product: r.products[a.ProductID]})
		}
	}
	return out, nil
}

func (r *memoryRepo) CloseAccount(ctx context.Context, tenantID, id int64, at time.Time) error {
	a, ok := r.accounts[id]
	if !ok || a.TenantID != tenantID {
		return ErrAccountNotFound
	}
	a.Status = AccountClosed
	a.ClosedAt = &at
	r.accounts[id] = a
	return nil
}

func postingKey(tenantID, accountID int64) string {
	return fmt.Sprintf("%d:%d", tenantID, accountID)
}

func (r *memoryRepo) RecordInterestPosting(ctx context.Context, tenantID, accountID int64, periodStart, periodEnd time.Time, amount decimal.Decimal, journalID int64) error {
	key := postingKey(tenantID, accountID)
	if last, ok := r.postings[key]; ok && last.Equal(periodEnd) {
		return ErrAlreadyPosted
	}
	r.postings[key] = periodEnd
	return nil
}

func (r *memoryRepo) LastPostedPeriodEnd(ctx context.Context, tenantID, accountID int64) (time.Time, bool, error) {
	last, ok := r.postings[postingKey(tenantID, accountID)]
	return last, ok, nil
}

type journalSpy struct {
	posted []journal.PostingInput
	linked map[string]bool
	nextID int64
}

func newJournalSpy() *journalSpy {
	return &journalSpy{linked: make(map[string]bool)}
}

func (j *journalSpy) Post(ctx context.Context, input journal.PostingInput) (journal.JournalEntry, error) {
	key := input.SourceModule + ":" + input.SourceID.String()
	if j.linked[key] {
		return journal.JournalEntry{}, ledgershared.ErrSourceAlreadyLinked
	}
	j.linked[key] = true
	j.posted = append(j.posted, input)
	j.nextID++
	return journal.JournalEntry{ID: j.nextID, TenantID: input.TenantID}, nil
}

type accountsSpy struct {
	created []accounts.CreateInput
	nextID  int64
}

func (a *accountsSpy) Create(ctx context.Context, in accounts.CreateInput) (accounts.Account, error) {
	a.created = append(a.created, in)
	a.nextID++
	return accounts.Account{ID: a.nextID + 100, TenantID: in.TenantID, Code: in.Code, Type: in.Type, IsActive: true}, nil
}

// fakeLedger serves canned balances and balance histories per ledger account.
type fakeLedger struct {
	balances  map[int64]decimal.Decimal
	histories map[int64]statement.Statement
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances:  make(map[int64]decimal.Decimal),
		histories: make(map[int64]statement.Statement),
	}
}

func (f *fakeLedger) History(ctx context.Context, tenantID, accountID int64, from, to time.Time) (statement.Statement, error) {
	return f.histories[accountID], nil
}

func (f *fakeLedger) Balance(ctx context.Context, tenantID, accountID int64) (decimal.Decimal, error) {
	return f.balances[accountID], nil
}

type fixture struct {
	repo    *memoryRepo
	journal *journalSpy
	acc     *accountsSpy
	ledger  *fakeLedger
	svc     *Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:    newMemoryRepo(),
		journal: newJournalSpy(),
		acc:     &accountsSpy{},
		ledger:  newFakeLedger(),
	}
	f.svc = NewService(f.repo, f.journal, f.acc, f.ledger, shared.NewRunClaims(nil, 0), GLConfig{CashCode: "1000"})
	return f
}

func savingsProduct(t *testing.T, f *fixture, rate, tax string) Product {
	t.Helper()
	p, err := f.svc.CreateProduct(context.Background(), Product{
		TenantID:            1,
		Code:                "SAV",
		Name:                "Regular savings",
		Kind:                KindSavings,
		AnnualRatePercent:   d(rate),
		PostingFrequency:    accrual.PostMonthly,
		DayCountBasis:       365,
		TaxRatePercent:      d(tax),
		InterestExpenseCode: "5100",
		TaxPayableCode:      "2400",
	})
	require.NoError(t, err)
	return p
}

func TestCreateProductGuards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateProduct(ctx, Product{Code: "SAV", Kind: KindSavings})
	require.ErrorIs(t, err, ledgershared.ErrValidation)

	_, err = f.svc.CreateProduct(ctx, Product{TenantID: 1, Code: "X", Kind: "CHECKING"})
	require.ErrorIs(t, err, ledgershared.ErrValidation)

	_, err = f.svc.CreateProduct(ctx, Product{TenantID: 1, Code: "X", Kind: KindSavings, AnnualRatePercent: d("-1")})
	require.ErrorIs(t, err, ledgershared.ErrValidation)

	_, err = f.svc.CreateProduct(ctx, Product{TenantID: 1, Code: "FD", Kind: KindFixedDeposit, TermMonths: 0})
	require.ErrorIs(t, err, ledgershared.ErrValidation)
}

func TestOpenAccountCreatesLedgerLeaf(t *testing.T) {
	f := newFixture()
	product := savingsProduct(t, f, "6", "0")
	f.svc.WithNow(func() time.Time { return day(2024, 6, 1) })

	account, err := f.svc.OpenAccount(context.Background(), OpenInput{TenantID: 1, MemberID: 42, ProductID: product.ID})
	require.NoError(t, err)
	require.Equal(t, AccountActive, account.Status)
	require.Nil(t, account.MaturesAt)
	require.NotZero(t, account.LedgerAccountID)

	require.Len(t, f.acc.created, 1)
	created := f.acc.created[0]
	require.Equal(t, accounts.AccountTypeLiability, created.Type)
	require.Contains(t, created.Code, "DEP-SAV-42-")
}

func TestOpenFixedDepositSetsMaturity(t *testing.T) {
	f := newFixture()
	p, err := f.svc.CreateProduct(context.Background(), Product{
		TenantID:            1,
		Code:                "FD12",
		Name:                "One-year deposit",
		Kind:                KindFixedDeposit,
		AnnualRatePercent:   d("8"),
		PostingFrequency:    accrual.PostQuarterly,
		InterestExpenseCode: "5100",
		TermMonths:          12,
	})
	require.NoError(t, err)
	f.svc.WithNow(func() time.Time { return day(2024, 1, 31) })

	account, err := f.svc.OpenAccount(context.Background(), OpenInput{TenantID: 1, MemberID: 7, ProductID: p.ID})
	require.NoError(t, err)
	require.NotNil(t, account.MaturesAt)
	require.Equal(t, day(2025, 1, 31), *account.MaturesAt)
}

func TestDepositPostsCashAgainstLiability(t *testing.T) {
	f := newFixture()
	product := savingsProduct(t, f, "6", "0")
	account, err := f.svc.OpenAccount(context.Background(), OpenInput{TenantID: 1, MemberID: 42, ProductID: product.ID})
	require.NoError(t, err)

	_, err = f.svc.Deposit(context.Background(), 1, account.ID, 9, d("500"), day(2024, 6, 2))
	require.NoError(t, err)

	require.Len(t, f.journal.posted, 1)
	entry := f.journal.posted[0]
	require.Equal(t, "deposit:credit", entry.SourceModule)
	require.Equal(t, "1000", entry.Lines[0].AccountCode)
	require.True(t, entry.Lines[0].Debit.Equal(d("500")))
	require.Equal(t, account.LedgerAccountID, entry.Lines[1].AccountID)
	require.True(t, entry.Lines[1].Credit.Equal(d("500")))

	_, err = f.svc.Deposit(context.Background(), 1, account.ID, 9, decimal.Zero, time.Time{})
	require.ErrorIs(t, err, ledgershared.ErrValidation)
}

func TestWithdrawChecksLedgerBalance(t *testing.T) {
	f := newFixture()
	product := savingsProduct(t, f, "6", "0")
	account, err := f.svc.OpenAccount(context.Background(), OpenInput{TenantID: 1, MemberID: 42, ProductID: product.ID})
	require.NoError(t, err)
	f.ledger.balances[account.LedgerAccountID] = d("300")

	_, err = f.svc.Withdraw(context.Background(), 1, account.ID, 9, d("400"), time.Time{})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Empty(t, f.journal.posted)

	_, err = f.svc.Withdraw(context.Background(), 1, account.ID, 9, d("300"), day(2024, 6, 10))
	require.NoError(t, err)
	entry := f.journal.posted[0]
	require.Equal(t, "deposit:debit", entry.SourceModule)
	require.Equal(t, account.LedgerAccountID, entry.Lines[0].AccountID)
	require.True(t, entry.Lines[0].Debit.Equal(d("300")))
	require.Equal(t, "1000", entry.Lines[1].AccountCode)
}

func TestTransactionsRejectedOnClosedAccount(t *testing.T) {
	f := newFixture()
	product := savingsProduct(t, f, "0", "0")
	account, err := f.svc.OpenAccount(context.Background(), OpenInput{TenantID: 1, MemberID: 42, ProductID: product.ID})
	require.NoError(t, err)
	require.NoError(t, f.repo.CloseAccount(context.Background(), 1, account.ID, day(2024, 7, 1)))

	_, err = f.svc.Deposit(context.Background(), 1, account.ID, 9, d("100"), time.Time{})
	require.ErrorIs(t, err, ErrAccountClosed)
	_, err = f.svc.Withdraw(context.Background(), 1, account.ID, 9, d("100"), time.Time{})
	require.ErrorIs(t, err, ErrAccountClosed)
}

func TestCloseAccountPaysOutBalance(t *testing.T) {
	f := newFixture()
	product := savingsProduct(t, f, "0", "0") // zero rate: no final interest
	f.svc.WithNow(func() time.Time { return day(2024, 6, 1) })
	account, err := f.svc.OpenAccount(context.Background(), OpenInput{TenantID: 1, MemberID: 42, ProductID: product.ID})
	require.NoError(t, err)
	f.ledger.balances[account.LedgerAccountID] = d("800")
	f.svc.WithNow(func() time.Time { return day(2024, 9, 15) })

	require.NoError(t, f.svc.CloseAccount(context.Background(), 1, account.ID, 9))

	require.Len(t, f.journal.posted, 1)
	entry := f.journal.posted[0]
	require.Equal(t, "deposit:closure", entry.SourceModule)
	require.Equal(t, account.LedgerAccountID, entry.Lines[0].AccountID)
	require.True(t, entry.Lines[0].Debit.Equal(d("800")))
	require.Equal(t, "1000", entry.Lines[1].AccountCode)
	require.True(t, entry.Lines[1].Credit.Equal(d("800")))

	stored, err := f.repo.GetAccount(context.Background(), 1, account.ID)
	require.NoError(t, err)
	require.Equal(t, AccountClosed, stored.Status)
	require.NotNil(t, stored.ClosedAt)
}

func TestCloseFixedDepositBeforeMaturity(t *testing.T) {
	f := newFixture()
	p, err := f.svc.CreateProduct(context.Background(), Product{
		TenantID:            1,
		Code:                "FD12",
		Name:                "One-year deposit",
		Kind:                KindFixedDeposit,
		AnnualRatePercent:   d("8"),
		PostingFrequency:    accrual.PostQuarterly,
		InterestExpenseCode: "5100",
		TermMonths:          12,
	})
	require.NoError(t, err)
	f.svc.WithNow(func() time.Time { return day(2024, 1, 15) })
	account, err := f.svc.OpenAccount(context.Background(), OpenInput{TenantID: 1, MemberID: 7, ProductID: p.ID})
	require.NoError(t, err)

	f.svc.WithNow(func() time.Time { return day(2024, 6, 1) })
	err = f.svc.CloseAccount(context.Background(), 1, account.ID, 9)
	require.ErrorIs(t, err, ErrNotMatured)

	stored, err := f.repo.GetAccount(context.Background(), 1, account.ID)
	require.NoError(t, err)
	require.Equal(t, AccountActive, stored.Status)
}
