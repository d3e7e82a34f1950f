package loans

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coopfin/coopfin/internal/finance/amort"
)

// Repository persists loan applications and their schedules.
type Repository interface {
	Insert(ctx context.Context, loan LoanApplication) (LoanApplication, error)
	Get(ctx context.Context, tenantID, id int64) (LoanApplication, error)
	List(ctx context.Context, tenantID int64, status LoanStatus) ([]LoanApplication, error)
	UpdateStatus(ctx context.Context, tenantID, id int64, status LoanStatus, at time.Time) error
	ReplaceSchedule(ctx context.Context, loanID int64, schedule []amort.Installment) error
	ListSchedule(ctx context.Context, loanID int64) ([]ScheduledInstallment, error)
	MarkInstallmentPaid(ctx context.Context, loanID int64, number int, at time.Time) error
	MarkOverdue(ctx context.Context, tenantID int64, asOf time.Time) (int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const loanColumns = `id, tenant_id, member_id, ref, amount, annual_rate, tenure_months, status, applied_at, approved_at, disbursed_at, created_at, updated_at`

func scanLoan(row pgx.Row) (LoanApplication, error) {
	var l LoanApplication
	err := row.Scan(&l.ID, &l.TenantID, &l.MemberID, &l.Ref, &l.Amount, &l.AnnualRatePercent, &l.TenureMonths,
		&l.Status, &l.AppliedAt, &l.ApprovedAt, &l.DisbursedAt, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (r *repository) Insert(ctx context.Context, loan LoanApplication) (LoanApplication, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO loan_applications (tenant_id, member_id, ref, amount, annual_rate, tenure_months, status, applied_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+loanColumns,
		loan.TenantID, loan.MemberID, loan.Ref, loan.Amount, loan.AnnualRatePercent, loan.TenureMonths, loan.Status, loan.AppliedAt)
	return scanLoan(row)
}

func (r *repository) Get(ctx context.Context, tenantID, id int64) (LoanApplication, error) {
	loan, err := scanLoan(r.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loan_applications WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LoanApplication{}, ErrLoanNotFound
		}
		return LoanApplication{}, err
	}
	return loan, nil
}

func (r *repository) List(ctx context.Context, tenantID int64, status LoanStatus) ([]LoanApplication, error) {
	query := `SELECT ` + loanColumns + ` FROM loan_applications WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status=$2`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LoanApplication
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, loan)
	}
	return out, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, tenantID, id int64, status LoanStatus, at time.Time) error {
	var column string
	switch status {
	case LoanApproved:
		column = "approved_at"
	case LoanDisbursed:
		column = "disbursed_at"
	default:
		column = ""
	}
	query := `UPDATE loan_applications SET status=$3, updated_at=NOW()`
	if column != "" {
		query += `, ` + column + `=$4`
	}
	query += ` WHERE tenant_id=$1 AND id=$2`
	args := []any{tenantID, id, status}
	if column != "" {
		args = append(args, at)
	}
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrLoanNotFound
	}
	return nil
}

func (r *repository) ReplaceSchedule(ctx context.Context, loanID int64, schedule []amort.Installment) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM loan_installments WHERE loan_id=$1 AND status='pending'`, loanID); err != nil {
		return err
	}
	for _, inst := range schedule {
		if _, err := tx.Exec(ctx, `INSERT INTO loan_installments (loan_id, number, due_date, principal, interest, total, status)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, loanID, inst.Number, inst.DueDate, inst.Principal, inst.Interest, inst.Total, inst.Status); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *repository) ListSchedule(ctx context.Context, loanID int64) ([]ScheduledInstallment, error) {
	rows, err := r.db.Query(ctx, `SELECT id, loan_id, number, due_date, principal, interest, total, status, paid_at
FROM loan_installments WHERE loan_id=$1 ORDER BY number ASC`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScheduledInstallment
	for rows.Next() {
		var inst ScheduledInstallment
		if err := rows.Scan(&inst.ID, &inst.LoanID, &inst.Number, &inst.DueDate, &inst.Principal, &inst.Interest, &inst.Total, &inst.Status, &inst.PaidAt); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (r *repository) MarkInstallmentPaid(ctx context.Context, loanID int64, number int, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE loan_installments SET status='paid', paid_at=$3 WHERE loan_id=$1 AND number=$2 AND status <> 'paid'`,
		loanID, number, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInstallmentNotFound
	}
	return nil
}

func (r *repository) MarkOverdue(ctx context.Context, tenantID int64, asOf time.Time) (int64, error) {
	// tenantID 0 sweeps all tenants; the scheduled scan uses it.
	cmd, err := r.db.Exec(ctx, `UPDATE loan_installments li SET status='overdue'
FROM loan_applications la
WHERE li.loan_id = la.id AND ($1 = 0 OR la.tenant_id = $1) AND li.status='pending' AND li.due_date < $2`, tenantID, asOf)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
