package payroll

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Insert(ctx context.Context, run PayrollRun) (PayrollRun, error)
	Get(ctx context.Context, tenantID, id int64) (PayrollRun, error)
	MarkExported(ctx context.Context, tenantID, id int64, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, run PayrollRun) (PayrollRun, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return PayrollRun{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `INSERT INTO payroll_runs (tenant_id, ref, period_year, period_month)
VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		run.TenantID, run.Ref, run.PeriodYear, int(run.PeriodMonth)).Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		return PayrollRun{}, err
	}
	for i, line := range run.Lines {
		err = tx.QueryRow(ctx, `INSERT INTO payroll_lines (run_id, member_id, gross, deductions, net)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			run.ID, line.MemberID, line.Gross, line.Deductions, line.Net).Scan(&run.Lines[i].ID)
		if err != nil {
			return PayrollRun{}, err
		}
		run.Lines[i].RunID = run.ID
	}
	if err := tx.Commit(ctx); err != nil {
		return PayrollRun{}, err
	}
	return run, nil
}

func (r *repository) Get(ctx context.Context, tenantID, id int64) (PayrollRun, error) {
	var run PayrollRun
	var month int
	err := r.db.QueryRow(ctx, `SELECT id, tenant_id, ref, period_year, period_month, exported_at, created_at
FROM payroll_runs WHERE tenant_id=$1 AND id=$2`, tenantID, id).
		Scan(&run.ID, &run.TenantID, &run.Ref, &run.PeriodYear, &month, &run.ExportedAt, &run.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PayrollRun{}, ErrRunNotFound
		}
		return PayrollRun{}, err
	}
	run.PeriodMonth = time.Month(month)

	rows, err := r.db.Query(ctx, `SELECT id, run_id, member_id, gross, deductions, net
FROM payroll_lines WHERE run_id=$1 ORDER BY id`, run.ID)
	if err != nil {
		return PayrollRun{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line PayrollLine
		if err := rows.Scan(&line.ID, &line.RunID, &line.MemberID, &line.Gross, &line.Deductions, &line.Net); err != nil {
			return PayrollRun{}, err
		}
		run.Lines = append(run.Lines, line)
	}
	return run, rows.Err()
}

func (r *repository) MarkExported(ctx context.Context, tenantID, id int64, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE payroll_runs SET exported_at=$3 WHERE tenant_id=$1 AND id=$2`, tenantID, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}
