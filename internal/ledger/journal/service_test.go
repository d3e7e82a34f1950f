package journal

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coopfin/coopfin/internal/ledger/shared"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type memoryRepo struct {
	accounts    map[string]PostingAccount
	entries     map[int64]JournalEntry
	seqs        map[string]int64
	sources     map[string]int64
	nextEntryID int64

	// failInserts makes the next n InsertEntry calls report a number
	// collision, exercising the retry loop.
	failInserts int
	seqCalls    int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts: make(map[string]PostingAccount),
		entries:  make(map[int64]JournalEntry),
		seqs:     make(map[string]int64),
		sources:  make(map[string]int64),
	}
}

func (r *memoryRepo) addAccount(a PostingAccount) {
	r.accounts[a.Code] = a
}

func (r *memoryRepo) List(ctx context.Context, tenantID int64, limit, offset int) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, e := range r.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) Count(ctx context.Context, tenantID int64) (int, error) {
	total := 0
	for _, e := range r.entries {
		if e.TenantID == tenantID {
			total++
		}
	}
	return total, nil
}

func (r *memoryRepo) Get(ctx context.Context, tenantID, entryID int64) (JournalEntry, error) {
	e, ok := r.entries[entryID]
	if !ok || e.TenantID != tenantID {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	return e, nil
}

// memoryTx stages writes and merges them back only when fn succeeds,
// mirroring transactional visibility.
type memoryTx struct {
	repo    *memoryRepo
	entries []JournalEntry
	seqs    map[string]int64
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, seqs: make(map[string]int64)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for key, seq := range tx.seqs {
		r.seqs[key] = seq
	}
	for _, e := range tx.entries {
		r.entries[e.ID] = e
		if e.SourceModule != "" {
			r.sources[sourceKey(e)] = e.ID
		}
	}
	return nil
}

func sourceKey(e JournalEntry) string {
	return fmt.Sprintf("%d:%s:%s", e.TenantID, e.SourceModule, e.SourceID)
}

func (tx *memoryTx) ResolveAccountByCode(ctx context.Context, tenantID int64, code string) (PostingAccount, error) {
	a, ok := tx.repo.accounts[code]
	if !ok {
		return PostingAccount{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func (tx *memoryTx) ResolveAccountByID(ctx context.Context, tenantID, id int64) (PostingAccount, error) {
	for _, a := range tx.repo.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return PostingAccount{}, shared.ErrAccountNotFound
}

func (tx *memoryTx) NextSequence(ctx context.Context, tenantID int64, year int) (int64, error) {
	tx.repo.seqCalls++
	key := fmt.Sprintf("%d:%d", tenantID, year)
	seq := tx.repo.seqs[key]
	if staged, ok := tx.seqs[key]; ok {
		seq = staged
	}
	seq++
	tx.seqs[key] = seq
	return seq, nil
}

func (tx *memoryTx) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	if tx.repo.failInserts > 0 {
		tx.repo.failInserts--
		return JournalEntry{}, shared.ErrDuplicateEntryNumber
	}
	if entry.SourceModule != "" {
		if _, ok := tx.repo.sources[sourceKey(entry)]; ok {
			return JournalEntry{}, shared.ErrSourceConflict
		}
	}
	tx.repo.nextEntryID++
	entry.ID = tx.repo.nextEntryID
	entry.CreatedAt = time.Now()
	tx.entries = append(tx.entries, entry)
	return entry, nil
}

func (tx *memoryTx) InsertPostings(ctx context.Context, journalID int64, lines []ResolvedLine) ([]Posting, error) {
	out := make([]Posting, 0, len(lines))
	for i, line := range lines {
		out = append(out, Posting{
			ID:        int64(i + 1),
			JournalID: journalID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
		})
	}
	for i := range tx.entries {
		if tx.entries[i].ID == journalID {
			tx.entries[i].Lines = out
		}
	}
	return out, nil
}

func (tx *memoryTx) GetWithLines(ctx context.Context, tenantID, entryID int64) (JournalEntry, error) {
	return tx.repo.Get(ctx, tenantID, entryID)
}

func seededRepo() *memoryRepo {
	repo := newMemoryRepo()
	repo.addAccount(PostingAccount{ID: 1, Code: "1000", IsActive: true})
	repo.addAccount(PostingAccount{ID: 2, Code: "1200", IsActive: true})
	repo.addAccount(PostingAccount{ID: 3, Code: "2000", IsActive: true})
	repo.addAccount(PostingAccount{ID: 4, Code: "1", IsGroup: true, IsActive: true})
	repo.addAccount(PostingAccount{ID: 5, Code: "1900", IsActive: false})
	return repo
}

func balancedInput() PostingInput {
	return PostingInput{
		TenantID:    7,
		Date:        time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
		Description: "Capital injection",
		Lines: []PostingLineInput{
			{AccountCode: "1000", Debit: d("500")},
			{AccountCode: "2000", Credit: d("500")},
		},
	}
}

func TestPostBalancedEntry(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo)
	ctx := context.Background()

	entry, err := svc.Post(ctx, balancedInput())
	require.NoError(t, err)
	require.Equal(t, "JE-2024-000001", entry.Number)
	require.Equal(t, int64(1), entry.Seq)
	require.Equal(t, 2024, entry.Year)
	require.Len(t, entry.Lines, 2)
	require.Equal(t, int64(1), entry.Lines[0].AccountID)
	require.True(t, entry.Lines[0].Debit.Equal(d("500")))
	require.True(t, entry.Lines[1].Credit.Equal(d("500")))

	// Numbers advance per tenant and year.
	second, err := svc.Post(ctx, balancedInput())
	require.NoError(t, err)
	require.Equal(t, "JE-2024-000002", second.Number)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Post(ctx, balancedInput())
		require.NoError(t, err)
	}

	entries, pagination, err := svc.List(ctx, 7, 1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(5), entries[0].Seq)
	require.Equal(t, int64(4), entries[1].Seq)
	require.Equal(t, 5, pagination.Total)
	require.Equal(t, 3, pagination.TotalPages)

	entries, pagination, err = svc.List(ctx, 7, 3, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(1), entries[0].Seq)
	require.Equal(t, 3, pagination.Page)

	// Foreign tenants see nothing.
	entries, pagination, err = svc.List(ctx, 8, 1, 2)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Equal(t, 0, pagination.Total)
}

func TestPostRejectsUnbalanced(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo)

	input := balancedInput()
	input.Lines[1].Credit = d("499.99")
	_, err := svc.Post(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrUnbalanced)
	require.Empty(t, repo.entries, "nothing may be stored")
}

func TestPostRejectsSubCentImbalance(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo)

	// Raw sums balance (1.004 + 1.004 = 2.008) but the stored cent values
	// would not: 1.00 + 1.00 vs 2.01.
	input := balancedInput()
	input.Lines = []PostingLineInput{
		{AccountCode: "1000", Debit: d("1.004")},
		{AccountCode: "1200", Debit: d("1.004")},
		{AccountCode: "2000", Credit: d("2.008")},
	}
	_, err := svc.Post(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrUnbalanced)
	require.Empty(t, repo.entries, "nothing may be stored")
}

func TestPostStoresCentRoundedLines(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo)

	input := balancedInput()
	input.Lines = []PostingLineInput{
		{AccountCode: "1000", Debit: d("2.004")},
		{AccountCode: "2000", Credit: d("2.00")},
	}
	entry, err := svc.Post(context.Background(), input)
	require.NoError(t, err)
	require.True(t, entry.Lines[0].Debit.Equal(d("2.00")))
	require.True(t, entry.Lines[1].Credit.Equal(d("2.00")))
}

func TestPostRejectsSingleLine(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo)

	input := balancedInput()
	input.Lines = input.Lines[:1]
	_, err := svc.Post(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrTooFewLines)
}

func TestPostRejectsBothSidesSet(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo)

	input := balancedInput()
	input.Lines[0].Credit = d("500")
	input.Lines[0].Debit = d("500")
	_, err := svc.Post(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = balancedInput()
	input.Lines[0].Debit = decimal.Zero
	_, err = svc.Post(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPostRejectsGroupAndInactiveAccounts(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo)
	ctx := context.Background()

	input := balancedInput()
	input.Lines[0].AccountCode = "1" // group
	_, err := svc.Post(ctx, input)
	require.ErrorIs(t, err, shared.ErrAccountInactiveOrGroup)

	input = balancedInput()
	input.Lines[0].AccountCode = "1900" // inactive
	_, err = svc.Post(ctx, input)
	require.ErrorIs(t, err, shared.ErrAccountInactiveOrGroup)

	input = balancedInput()
	input.Lines[0].AccountCode = "9999"
	_, err = svc.Post(ctx, input)
	require.ErrorIs(t, err, shared.ErrAccountNotFound)

	require.Empty(t, repo.entries)
}

func TestPostRetriesNumberCollision(t *testing.T) {
	repo := seededRepo()
	repo.failInserts = 2
	svc := NewService(repo)

	entry, err := svc.Post(context.Background(), balancedInput())
	require.NoError(t, err)
	require.Equal(t, 3, repo.seqCalls, "two collisions then success")
	require.NotZero(t, entry.ID)
}

func TestPostGivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := seededRepo()
	repo.failInserts = 10
	svc := NewService(repo)

	_, err := svc.Post(context.Background(), balancedInput())
	require.ErrorIs(t, err, shared.ErrDuplicateEntryNumber)
	require.Empty(t, repo.entries)
}

func TestPostSourceLinkIsIdempotent(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo)
	ctx := context.Background()

	input := balancedInput()
	input.SourceModule = "loans:disbursement"
	input.SourceID = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	_, err := svc.Post(ctx, input)
	require.NoError(t, err)

	_, err = svc.Post(ctx, input)
	require.ErrorIs(t, err, shared.ErrSourceAlreadyLinked)
	require.Len(t, repo.entries, 1)
}

func TestPostWithoutSourceNeverConflicts(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo)
	ctx := context.Background()

	// Manual entries carry no source link; any number of them may coexist.
	first, err := svc.Post(ctx, balancedInput())
	require.NoError(t, err)
	second, err := svc.Post(ctx, balancedInput())
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Len(t, repo.entries, 2)
	require.Empty(t, repo.sources, "no link may be recorded for source-less entries")
}

func TestReverseMirrorsLines(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo)
	ctx := context.Background()

	original, err := svc.Post(ctx, balancedInput())
	require.NoError(t, err)

	reversal, err := svc.Reverse(ctx, ReverseInput{
		TenantID: 7,
		EntryID:  original.ID,
		ActorID:  42,
	})
	require.NoError(t, err)
	require.Equal(t, "Reversal of "+original.Number, reversal.Description)
	require.Equal(t, "journal:reversal", reversal.SourceModule)
	require.Len(t, reversal.Lines, 2)

	// Debits and credits swap sides, amounts unchanged.
	require.Equal(t, original.Lines[0].AccountID, reversal.Lines[0].AccountID)
	require.True(t, reversal.Lines[0].Credit.Equal(original.Lines[0].Debit))
	require.True(t, reversal.Lines[1].Debit.Equal(original.Lines[1].Credit))
}

func TestReverseUnknownEntry(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo)

	_, err := svc.Reverse(context.Background(), ReverseInput{TenantID: 7, EntryID: 99})
	require.ErrorIs(t, err, shared.ErrJournalNotFound)
}

type recordingInvalidator struct {
	tenants  []int64
	accounts [][]int64
}

func (r *recordingInvalidator) InvalidateAccounts(ctx context.Context, tenantID int64, accountIDs []int64) {
	r.tenants = append(r.tenants, tenantID)
	r.accounts = append(r.accounts, accountIDs)
}

func TestPostNotifiesInvalidator(t *testing.T) {
	repo := seededRepo()
	inv := &recordingInvalidator{}
	svc := NewService(repo).WithCacheInvalidator(inv)

	_, err := svc.Post(context.Background(), balancedInput())
	require.NoError(t, err)
	require.Equal(t, []int64{7}, inv.tenants)
	require.Equal(t, [][]int64{{1, 3}}, inv.accounts)
}
