package statement

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coopfin/coopfin/internal/ledger/accounts"
	"github.com/coopfin/coopfin/internal/ledger/shared"
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
	rows map[int64][]PostingRow
}

func (r *memoryRepo) SumBefore(ctx context.Context, tenantID, accountID int64, before time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var debit, credit decimal.Decimal
	for _, row := range r.rows[accountID] {
		if row.Date.Before(before) {
			debit = debit.Add(row.Debit)
			credit = credit.Add(row.Credit)
		}
	}
	return debit, credit, nil
}

func (r *memoryRepo) ListRange(ctx context.Context, tenantID, accountID int64, from, to time.Time, limit int) ([]PostingRow, error) {
	var out []PostingRow
	for _, row := range r.rows[accountID] {
		if !row.Date.Before(from) && !row.Date.After(to) {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].EntryYear != out[j].EntryYear {
			return out[i].EntryYear < out[j].EntryYear
		}
		return out[i].EntrySeq < out[j].EntrySeq
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) ListAll(ctx context.Context, tenantID, accountID int64, from, to time.Time) ([]PostingRow, error) {
	return r.ListRange(ctx, tenantID, accountID, from, to, len(r.rows[accountID]))
}

type memoryResolver struct {
	accounts map[int64]accounts.Account
}

func (r *memoryResolver) GetByID(ctx context.Context, tenantID, id int64) (accounts.Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func fixture() (*memoryRepo, *memoryResolver) {
	repo := &memoryRepo{rows: map[int64][]PostingRow{
		// Asset account: opening activity in May, then three June postings.
		10: {
			{Date: day(2024, 5, 2), EntryYear: 2024, EntrySeq: 1, EntryNumber: "JE-2024-000001", Description: "Opening deposit", Debit: d("1000")},
			{Date: day(2024, 6, 3), EntryYear: 2024, EntrySeq: 5, EntryNumber: "JE-2024-000005", Description: "Cash in", Debit: d("250")},
			{Date: day(2024, 6, 3), EntryYear: 2024, EntrySeq: 6, EntryNumber: "JE-2024-000006", Description: "Cash out", Credit: d("100")},
			{Date: day(2024, 6, 20), EntryYear: 2024, EntrySeq: 9, EntryNumber: "JE-2024-000009", Description: "Transfer", Credit: d("50")},
		},
		// Liability account mirroring a member savings balance.
		20: {
			{Date: day(2024, 6, 1), EntryYear: 2024, EntrySeq: 2, EntryNumber: "JE-2024-000002", Description: "Member deposit", Credit: d("700")},
			{Date: day(2024, 6, 15), EntryYear: 2024, EntrySeq: 7, EntryNumber: "JE-2024-000007", Description: "Withdrawal", Debit: d("200")},
		},
	}}
	resolver := &memoryResolver{accounts: map[int64]accounts.Account{
		10: {ID: 10, Code: "1000", Type: accounts.AccountTypeAsset, IsActive: true},
		20: {ID: 20, Code: "2100", Type: accounts.AccountTypeLiability, IsActive: true},
	}}
	return repo, resolver
}

func TestStatementAssetAccount(t *testing.T) {
	repo, resolver := fixture()
	svc := NewService(repo, resolver)

	st, err := svc.Statement(context.Background(), Query{
		TenantID:  1,
		AccountID: 10,
		From:      day(2024, 6, 1),
		To:        day(2024, 6, 30),
	})
	require.NoError(t, err)
	require.Equal(t, "1000", st.AccountCode)
	require.True(t, st.OpeningBalance.Equal(d("1000")), "opening %s", st.OpeningBalance)
	require.Len(t, st.Lines, 3)

	// Same-day postings replay in sequence order.
	require.Equal(t, "JE-2024-000005", st.Lines[0].EntryNumber)
	require.Equal(t, "JE-2024-000006", st.Lines[1].EntryNumber)

	require.True(t, st.Lines[0].RunningBalance.Equal(d("1250")))
	require.True(t, st.Lines[1].RunningBalance.Equal(d("1150")))
	require.True(t, st.Lines[2].RunningBalance.Equal(d("1100")))
	require.True(t, st.ClosingBalance.Equal(d("1100")))
	require.True(t, st.TotalDebit.Equal(d("250")))
	require.True(t, st.TotalCredit.Equal(d("150")))
}

func TestStatementLiabilityAccountCreditNormal(t *testing.T) {
	repo, resolver := fixture()
	svc := NewService(repo, resolver)

	st, err := svc.Statement(context.Background(), Query{
		TenantID:  1,
		AccountID: 20,
		From:      day(2024, 6, 1),
		To:        day(2024, 6, 30),
	})
	require.NoError(t, err)
	require.True(t, st.OpeningBalance.IsZero())
	// Credits raise, debits lower a liability balance.
	require.True(t, st.Lines[0].RunningBalance.Equal(d("700")))
	require.True(t, st.Lines[1].RunningBalance.Equal(d("500")))
	require.True(t, st.ClosingBalance.Equal(d("500")))
}

func TestStatementIsDeterministic(t *testing.T) {
	repo, resolver := fixture()
	svc := NewService(repo, resolver)
	q := Query{TenantID: 1, AccountID: 10, From: day(2024, 1, 1), To: day(2024, 12, 31)}

	first, err := svc.Statement(context.Background(), q)
	require.NoError(t, err)
	second, err := svc.Statement(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestStatementCapsLines(t *testing.T) {
	repo, resolver := fixture()
	svc := NewService(repo, resolver).WithMaxLines(2)

	st, err := svc.Statement(context.Background(), Query{
		TenantID:  1,
		AccountID: 10,
		From:      day(2024, 6, 1),
		To:        day(2024, 6, 30),
		Limit:     50, // above the cap, gets clamped
	})
	require.NoError(t, err)
	require.Len(t, st.Lines, 2)
}

func TestStatementOpenEndedRangeSnapsToDay(t *testing.T) {
	repo, resolver := fixture()
	svc := NewService(repo, resolver)

	st, err := svc.Statement(context.Background(), Query{TenantID: 1, AccountID: 10})
	require.NoError(t, err)
	now := time.Now().UTC()
	require.True(t, st.To.Equal(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)))
}

func TestHistoryIgnoresLineCap(t *testing.T) {
	repo, resolver := fixture()
	svc := NewService(repo, resolver).WithMaxLines(2)

	st, err := svc.History(context.Background(), 1, 10, day(2024, 6, 1), day(2024, 6, 30))
	require.NoError(t, err)
	require.Len(t, st.Lines, 3, "accrual input must never be truncated")
	require.True(t, st.ClosingBalance.Equal(d("1100")))
}

func TestStatementRejectsInvertedRange(t *testing.T) {
	repo, resolver := fixture()
	svc := NewService(repo, resolver)

	_, err := svc.Statement(context.Background(), Query{
		TenantID:  1,
		AccountID: 10,
		From:      day(2024, 6, 30),
		To:        day(2024, 6, 1),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestStatementUnknownAccount(t *testing.T) {
	repo, resolver := fixture()
	svc := NewService(repo, resolver)

	_, err := svc.Statement(context.Background(), Query{TenantID: 1, AccountID: 404})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestBalance(t *testing.T) {
	repo, resolver := fixture()
	svc := NewService(repo, resolver)

	bal, err := svc.Balance(context.Background(), 1, 10)
	require.NoError(t, err)
	require.True(t, bal.Equal(d("1100")), "balance %s", bal)

	bal, err = svc.Balance(context.Background(), 1, 20)
	require.NoError(t, err)
	require.True(t, bal.Equal(d("500")), "balance %s", bal)
}

func TestSignedAmount(t *testing.T) {
	cases := []struct {
		name string
		typ  accounts.AccountType
		want string
	}{
		{"asset debit-normal", accounts.AccountTypeAsset, "30"},
		{"expense debit-normal", accounts.AccountTypeExpense, "30"},
		{"liability credit-normal", accounts.AccountTypeLiability, "-30"},
		{"equity credit-normal", accounts.AccountTypeEquity, "-30"},
		{"income credit-normal", accounts.AccountTypeIncome, "-30"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SignedAmount(tc.typ, d("50"), d("20"))
			require.True(t, got.Equal(d(tc.want)), "got %s", got)
		})
	}
}
