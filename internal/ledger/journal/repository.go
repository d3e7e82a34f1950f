package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coopfin/coopfin/internal/ledger/shared"
	"github.com/coopfin/coopfin/internal/platform/db"
	"github.com/shopspring/decimal"
)

// PostingAccount is the slice of account state the engine needs to admit a
// posting target.
type PostingAccount struct {
	ID       int64
	Code     string
	IsGroup  bool
	IsActive bool
}

// ResolvedLine is a posting line after account resolution.
type ResolvedLine struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Repository encapsulates DB operations for journal entries.
type Repository interface {
	List(ctx context.Context, tenantID int64, limit, offset int) ([]JournalEntry, error)
	Count(ctx context.Context, tenantID int64) (int, error)
	Get(ctx context.Context, tenantID, entryID int64) (JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	ResolveAccountByCode(ctx context.Context, tenantID int64, code string) (PostingAccount, error)
	ResolveAccountByID(ctx context.Context, tenantID, id int64) (PostingAccount, error)
	NextSequence(ctx context.Context, tenantID int64, year int) (int64, error)
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertPostings(ctx context.Context, journalID int64, lines []ResolvedLine) ([]Posting, error)
	GetWithLines(ctx context.Context, tenantID, entryID int64) (JournalEntry, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, tenant_id, number, seq, year, date, description, source_module, source_id, created_by, created_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	var sourceModule *string
	var sourceID *uuid.UUID
	err := row.Scan(&e.ID, &e.TenantID, &e.Number, &e.Seq, &e.Year, &e.Date, &e.Description, &sourceModule, &sourceID, &e.CreatedBy, &e.CreatedAt)
	if sourceModule != nil {
		e.SourceModule = *sourceModule
	}
	if sourceID != nil {
		e.SourceID = *sourceID
	}
	return e, err
}

func (r *repository) List(ctx context.Context, tenantID int64, limit, offset int) ([]JournalEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE tenant_id=$1 ORDER BY year DESC, seq DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) Get(ctx context.Context, tenantID, entryID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := r.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		found, err := tx.GetWithLines(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		entry = found
		return nil
	})
	return entry, err
}

func (r *repository) Count(ctx context.Context, tenantID int64) (int, error) {
	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries WHERE tenant_id=$1`, tenantID).Scan(&total)
	return total, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) ResolveAccountByCode(ctx context.Context, tenantID int64, code string) (PostingAccount, error) {
	return r.resolveAccount(ctx, `SELECT id, code, is_group, is_active FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code)
}

func (r *txRepository) ResolveAccountByID(ctx context.Context, tenantID, id int64) (PostingAccount, error) {
	return r.resolveAccount(ctx, `SELECT id, code, is_group, is_active FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id)
}

func (r *txRepository) resolveAccount(ctx context.Context, query string, args ...any) (PostingAccount, error) {
	var a PostingAccount
	err := r.tx.QueryRow(ctx, query, args...).Scan(&a.ID, &a.Code, &a.IsGroup, &a.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PostingAccount{}, shared.ErrAccountNotFound
		}
		return PostingAccount{}, err
	}
	return a, nil
}

// NextSequence allocates the next per-tenant-per-year entry sequence. The
// upserted row is locked for the remainder of the transaction, which
// serializes concurrent posters on the same tenant and year.
func (r *txRepository) NextSequence(ctx context.Context, tenantID int64, year int) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_sequences (tenant_id, year, next_seq) VALUES ($1,$2,1)
ON CONFLICT (tenant_id, year) DO UPDATE SET next_seq = journal_sequences.next_seq + 1
RETURNING next_seq`, tenantID, year).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	// Entries without a source link store NULLs so the source unique
	// constraint only ever sees real links.
	var sourceModule *string
	var sourceID *uuid.UUID
	if entry.SourceModule != "" {
		sourceModule = &entry.SourceModule
		sourceID = &entry.SourceID
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (tenant_id, number, seq, year, date, description, source_module, source_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		entry.TenantID, entry.Number, entry.Seq, entry.Year, entry.Date, entry.Description, sourceModule, sourceID, entry.CreatedBy)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "uq_journal_entries_source":
				return JournalEntry{}, shared.ErrSourceConflict
			default:
				return JournalEntry{}, shared.ErrDuplicateEntryNumber
			}
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertPostings(ctx context.Context, journalID int64, lines []ResolvedLine) ([]Posting, error) {
	out := make([]Posting, 0, len(lines))
	for _, line := range lines {
		var (
			id        int64
			createdAt time.Time
		)
		err := r.tx.QueryRow(ctx, `INSERT INTO postings (journal_id, account_id, debit, credit)
VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
			journalID, line.AccountID, line.Debit, line.Credit).Scan(&id, &createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, Posting{
			ID:        id,
			JournalID: journalID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			CreatedAt: createdAt,
		})
	}
	return out, nil
}

func (r *txRepository) GetWithLines(ctx context.Context, tenantID, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, journal_id, account_id, debit, credit, created_at
FROM postings WHERE journal_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var p Posting
		if err := rows.Scan(&p.ID, &p.JournalID, &p.AccountID, &p.Debit, &p.Credit, &p.CreatedAt); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, p)
	}
	return entry, rows.Err()
}
