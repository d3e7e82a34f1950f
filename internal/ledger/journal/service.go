package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coopfin/coopfin/internal/ledger/shared"
	internalShared "github.com/coopfin/coopfin/internal/shared"
)

// numberRetries bounds sequence-collision retries before the collision is
// surfaced as ErrDuplicateEntryNumber.
const numberRetries = 3

// CacheInvalidator is notified after a successful post so derived views
// (statements) can drop stale data for the touched accounts.
type CacheInvalidator interface {
	InvalidateAccounts(ctx context.Context, tenantID int64, accountIDs []int64)
}

type Service struct {
	repo       Repository
	invalidate CacheInvalidator
	now        func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithCacheInvalidator attaches a post-commit cache hook.
func (s *Service) WithCacheInvalidator(inv CacheInvalidator) *Service {
	s.invalidate = inv
	return s
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns one page of entries for a tenant, newest first, along with
// pagination metadata for the full set.
func (s *Service) List(ctx context.Context, tenantID int64, page, perPage int) ([]JournalEntry, internalShared.Pagination, error) {
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	if page <= 0 {
		page = 1
	}
	total, err := s.repo.Count(ctx, tenantID)
	if err != nil {
		return nil, internalShared.Pagination{}, err
	}
	entries, err := s.repo.List(ctx, tenantID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, internalShared.Pagination{}, err
	}
	return entries, internalShared.NewPagination(page, perPage, total), nil
}

// Get fetches one entry with its lines.
func (s *Service) Get(ctx context.Context, tenantID, entryID int64) (JournalEntry, error) {
	return s.repo.Get(ctx, tenantID, entryID)
}

// Post creates one balanced journal entry plus its postings as a single
// atomic unit. Either the whole entry becomes visible or nothing does.
//
// Entry numbers are sequential per tenant and year ("JE-2024-000041"). A
// number collision under concurrency aborts the transaction and the whole
// posting is retried with a fresh sequence value, up to numberRetries.
func (s *Service) Post(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	var lastErr error
	for attempt := 0; attempt < numberRetries; attempt++ {
		entry, lastErr = s.postOnce(ctx, input)
		if lastErr == nil {
			if s.invalidate != nil {
				s.invalidate.InvalidateAccounts(ctx, input.TenantID, accountIDs(entry.Lines))
			}
			return entry, nil
		}
		if errors.Is(lastErr, shared.ErrSourceConflict) {
			return JournalEntry{}, shared.ErrSourceAlreadyLinked
		}
		if !errors.Is(lastErr, shared.ErrDuplicateEntryNumber) {
			return JournalEntry{}, lastErr
		}
	}
	return JournalEntry{}, fmt.Errorf("%w: exhausted %d attempts", shared.ErrDuplicateEntryNumber, numberRetries)
}

func (s *Service) postOnce(ctx context.Context, input PostingInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		resolved := make([]ResolvedLine, 0, len(input.Lines))
		for _, line := range input.Lines {
			account, err := resolveLineAccount(ctx, tx, input.TenantID, line)
			if err != nil {
				return err
			}
			if !account.IsActive || account.IsGroup {
				return fmt.Errorf("%w: account %s", shared.ErrAccountInactiveOrGroup, account.Code)
			}
			resolved = append(resolved, ResolvedLine{
				AccountID: account.ID,
				Debit:     line.Debit.Round(MoneyScale),
				Credit:    line.Credit.Round(MoneyScale),
			})
		}

		year := input.Date.Year()
		seq, err := tx.NextSequence(ctx, input.TenantID, year)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertEntry(ctx, JournalEntry{
			TenantID:     input.TenantID,
			Number:       FormatNumber(year, seq),
			Seq:          seq,
			Year:         year,
			Date:         input.Date,
			Description:  input.Description,
			SourceModule: input.SourceModule,
			SourceID:     input.SourceID,
			CreatedBy:    input.CreatedBy,
		})
		if err != nil {
			return err
		}
		lines, err := tx.InsertPostings(ctx, inserted.ID, resolved)
		if err != nil {
			return err
		}
		inserted.Lines = lines
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// Reverse posts a new entry mirroring the original's lines. The original is
// left untouched; the ledger's correction model is append-only.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, fmt.Errorf("%w: entry id required", shared.ErrValidation)
	}
	original, err := s.repo.Get(ctx, input.TenantID, input.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	date := input.Date
	if date.IsZero() {
		date = s.now()
	}
	description := input.Description
	if description == "" {
		description = fmt.Sprintf("Reversal of %s", original.Number)
	}
	lines := make([]PostingLineInput, 0, len(original.Lines))
	for _, line := range original.Lines {
		lines = append(lines, PostingLineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	return s.Post(ctx, PostingInput{
		TenantID:     input.TenantID,
		Date:         date,
		Description:  description,
		SourceModule: "journal:reversal",
		SourceID:     uuid.New(),
		CreatedBy:    input.ActorID,
		Lines:        lines,
	})
}

// FormatNumber renders the human-readable entry number.
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("JE-%d-%06d", year, seq)
}

func resolveLineAccount(ctx context.Context, tx TxRepository, tenantID int64, line PostingLineInput) (PostingAccount, error) {
	if line.AccountCode != "" {
		return tx.ResolveAccountByCode(ctx, tenantID, line.AccountCode)
	}
	return tx.ResolveAccountByID(ctx, tenantID, line.AccountID)
}

func accountIDs(lines []Posting) []int64 {
	out := make([]int64, 0, len(lines))
	for _, line := range lines {
		out = append(out, line.AccountID)
	}
	return out
}
