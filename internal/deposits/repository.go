package deposits

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists deposit products, accounts, and the interest-posting
// register that makes the accrual run idempotent.
type Repository interface {
	InsertProduct(ctx context.Context, p Product) (Product, error)
	GetProduct(ctx context.Context, tenantID, id int64) (Product, error)
	ListProducts(ctx context.Context, tenantID int64) ([]Product, error)

	// ListTenants enumerates tenants holding at least one active account.
	ListTenants(ctx context.Context) ([]int64, error)

	InsertAccount(ctx context.Context, a DepositAccount) (DepositAccount, error)
	GetAccount(ctx context.Context, tenantID, id int64) (DepositAccount, error)
	ListActiveWithProducts(ctx context.Context, tenantID int64) ([]AccountWithProduct, error)
	CloseAccount(ctx context.Context, tenantID, id int64, at time.Time) error

	// RecordInterestPosting registers a posted accrual period. The unique
	// constraint on (tenant_id, account_id, period_end) is the hard
	// idempotency guard; a duplicate surfaces as ErrAlreadyPosted.
	RecordInterestPosting(ctx context.Context, tenantID, accountID int64, periodStart, periodEnd time.Time, amount decimal.Decimal, journalID int64) error
	// LastPostedPeriodEnd returns the latest period end already posted.
	LastPostedPeriodEnd(ctx context.Context, tenantID, accountID int64) (time.Time, bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, tenant_id, code, name, kind, annual_rate, posting_frequency, day_count_basis, tax_rate, interest_expense_code, tax_payable_code, term_months, created_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.TenantID, &p.Code, &p.Name, &p.Kind, &p.AnnualRatePercent, &p.PostingFrequency,
		&p.DayCountBasis, &p.TaxRatePercent, &p.InterestExpenseCode, &p.TaxPayableCode, &p.TermMonths, &p.CreatedAt)
	return p, err
}

func (r *repository) InsertProduct(ctx context.Context, p Product) (Product, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO deposit_products (tenant_id, code, name, kind, annual_rate, posting_frequency, day_count_basis, tax_rate, interest_expense_code, tax_payable_code, term_months)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING `+productColumns,
		p.TenantID, p.Code, p.Name, p.Kind, p.AnnualRatePercent, p.PostingFrequency, p.DayCountBasis, p.TaxRatePercent, p.InterestExpenseCode, p.TaxPayableCode, p.TermMonths)
	return scanProduct(row)
}

func (r *repository) GetProduct(ctx context.Context, tenantID, id int64) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM deposit_products WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *repository) ListProducts(ctx context.Context, tenantID int64) ([]Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM deposit_products WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const accountColumns = `id, tenant_id, member_id, product_id, ref, ledger_account_id, status, opened_at, matures_at, closed_at`

func scanAccount(row pgx.Row) (DepositAccount, error) {
	var a DepositAccount
	err := row.Scan(&a.ID, &a.TenantID, &a.MemberID, &a.ProductID, &a.Ref, &a.LedgerAccountID, &a.Status, &a.OpenedAt, &a.MaturesAt, &a.ClosedAt)
	return a, err
}

func (r *repository) InsertAccount(ctx context.Context, a DepositAccount) (DepositAccount, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO deposit_accounts (tenant_id, member_id, product_id, ref, ledger_account_id, status, opened_at, matures_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+accountColumns,
		a.TenantID, a.MemberID, a.ProductID, a.Ref, a.LedgerAccountID, a.Status, a.OpenedAt, a.MaturesAt)
	return scanAccount(row)
}

func (r *repository) GetAccount(ctx context.Context, tenantID, id int64) (DepositAccount, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM deposit_accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DepositAccount{}, ErrAccountNotFound
		}
		return DepositAccount{}, err
	}
	return a, nil
}

func (r *repository) ListTenants(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT tenant_id FROM deposit_accounts WHERE status='ACTIVE' ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *repository) ListActiveWithProducts(ctx context.Context, tenantID int64) ([]AccountWithProduct, error) {
	rows, err := r.db.Query(ctx, `SELECT `+prefixed("a", accountColumns)+`, `+prefixed("p", productColumns)+`
FROM deposit_accounts a
JOIN deposit_products p ON p.id = a.product_id
WHERE a.tenant_id=$1 AND a.status='ACTIVE'
ORDER BY a.id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountWithProduct
	for rows.Next() {
		var item AccountWithProduct
		a := &item.Account
		p := &item.Product
		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.MemberID, &a.ProductID, &a.Ref, &a.LedgerAccountID, &a.Status, &a.OpenedAt, &a.MaturesAt, &a.ClosedAt,
			&p.ID, &p.TenantID, &p.Code, &p.Name, &p.Kind, &p.AnnualRatePercent, &p.PostingFrequency,
			&p.DayCountBasis, &p.TaxRatePercent, &p.InterestExpenseCode, &p.TaxPayableCode, &p.TermMonths, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *repository) CloseAccount(ctx context.Context, tenantID, id int64, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE deposit_accounts SET status='CLOSED', closed_at=$3 WHERE tenant_id=$1 AND id=$2 AND status='ACTIVE'`, tenantID, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *repository) RecordInterestPosting(ctx context.Context, tenantID, accountID int64, periodStart, periodEnd time.Time, amount decimal.Decimal, journalID int64) error {
	_, err := r.db.Exec(ctx, `INSERT INTO interest_postings (tenant_id, account_id, period_start, period_end, amount, journal_id)
VALUES ($1,$2,$3,$4,$5,$6)`, tenantID, accountID, periodStart, periodEnd, amount, journalID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyPosted
		}
		return err
	}
	return nil
}

func (r *repository) LastPostedPeriodEnd(ctx context.Context, tenantID, accountID int64) (time.Time, bool, error) {
	var end time.Time
	err := r.db.QueryRow(ctx, `SELECT period_end FROM interest_postings
WHERE tenant_id=$1 AND account_id=$2 ORDER BY period_end DESC LIMIT 1`, tenantID, accountID).Scan(&end)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return end, true, nil
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, col := range cols {
		cols[i] = alias + "." + col
	}
	return strings.Join(cols, ", ")
}
