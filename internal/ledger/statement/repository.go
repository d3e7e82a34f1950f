package statement

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostingRow is one ledger posting joined with its entry metadata, in
// replay order.
type PostingRow struct {
	Date        time.Time
	EntryYear   int
	EntrySeq    int64
	EntryNumber string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// Repository reads postings for statement reconstruction.
type Repository interface {
	// SumBefore aggregates debit and credit totals strictly before the date.
	SumBefore(ctx context.Context, tenantID, accountID int64, before time.Time) (debit, credit decimal.Decimal, err error)
	// ListRange returns postings within [from, to] ordered by (date, year, seq).
	ListRange(ctx context.Context, tenantID, accountID int64, from, to time.Time, limit int) ([]PostingRow, error)
	// ListAll is ListRange without the line cap, for internal callers that
	// must see the whole window.
	ListAll(ctx context.Context, tenantID, accountID int64, from, to time.Time) ([]PostingRow, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) SumBefore(ctx context.Context, tenantID, accountID int64, before time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var debit, credit decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(p.debit),0), COALESCE(SUM(p.credit),0)
FROM postings p
JOIN journal_entries e ON e.id = p.journal_id
WHERE e.tenant_id=$1 AND p.account_id=$2 AND e.date < $3`, tenantID, accountID, before).Scan(&debit, &credit)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return debit, credit, nil
}

const rangeQuery = `SELECT e.date, e.year, e.seq, e.number, e.description, p.debit, p.credit
FROM postings p
JOIN journal_entries e ON e.id = p.journal_id
WHERE e.tenant_id=$1 AND p.account_id=$2 AND e.date >= $3 AND e.date <= $4
ORDER BY e.date ASC, e.year ASC, e.seq ASC, p.id ASC`

func (r *repository) ListRange(ctx context.Context, tenantID, accountID int64, from, to time.Time, limit int) ([]PostingRow, error) {
	rows, err := r.db.Query(ctx, rangeQuery+` LIMIT $5`, tenantID, accountID, from, to, limit)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

func (r *repository) ListAll(ctx context.Context, tenantID, accountID int64, from, to time.Time) ([]PostingRow, error) {
	rows, err := r.db.Query(ctx, rangeQuery, tenantID, accountID, from, to)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

func collectRows(rows pgx.Rows) ([]PostingRow, error) {
	defer rows.Close()
	var out []PostingRow
	for rows.Next() {
		var row PostingRow
		if err := rows.Scan(&row.Date, &row.EntryYear, &row.EntrySeq, &row.EntryNumber, &row.Description, &row.Debit, &row.Credit); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
