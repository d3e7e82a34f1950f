package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/coopfin/coopfin/internal/deposits"
	"github.com/coopfin/coopfin/internal/loans"
)

// InterestRunJob processes deposit interest accrual tasks.
type InterestRunJob struct {
	service *deposits.Service
	logger  *slog.Logger
}

// NewInterestRunJob constructs a job handler.
func NewInterestRunJob(service *deposits.Service, logger *slog.Logger) *InterestRunJob {
	return &InterestRunJob{service: service, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *InterestRunJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload InterestRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.TenantID == 0 {
		// Scheduled runs carry no tenant: sweep every tenant with
		// active accounts.
		summaries, err := j.service.RunInterestAll(ctx, payload.AsOf, 0)
		if err != nil {
			if j.logger != nil {
				j.logger.Error("interest run sweep", slog.Any("error", err))
			}
			return err
		}
		if j.logger != nil {
			for _, summary := range summaries {
				j.logger.Info("interest run done",
					slog.Int64("tenant_id", summary.TenantID),
					slog.Int("posted", summary.Posted),
					slog.Int("skipped", summary.Skipped))
			}
		}
		return nil
	}
	summary, err := j.service.RunInterest(ctx, deposits.RunInput{TenantID: payload.TenantID, AsOf: payload.AsOf})
	if err != nil {
		if j.logger != nil {
			j.logger.Error("interest run", slog.Int64("tenant_id", payload.TenantID), slog.Any("error", err))
		}
		return err
	}
	if j.logger != nil {
		j.logger.Info("interest run done",
			slog.Int64("tenant_id", payload.TenantID),
			slog.Int("posted", summary.Posted),
			slog.Int("skipped", summary.Skipped))
	}
	return nil
}

// LoanOverdueScanJob flags past-due installments.
type LoanOverdueScanJob struct {
	service *loans.Service
	logger  *slog.Logger
}

// NewLoanOverdueScanJob constructs a job handler.
func NewLoanOverdueScanJob(service *loans.Service, logger *slog.Logger) *LoanOverdueScanJob {
	return &LoanOverdueScanJob{service: service, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *LoanOverdueScanJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload LoanOverdueScanPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// TenantID 0 is the scheduled all-tenant sweep.
	flagged, err := j.service.MarkOverdue(ctx, payload.TenantID, payload.AsOf)
	if err != nil {
		if j.logger != nil {
			j.logger.Error("overdue scan", slog.Int64("tenant_id", payload.TenantID), slog.Any("error", err))
		}
		return err
	}
	if j.logger != nil && flagged > 0 {
		j.logger.Info("overdue scan done", slog.Int64("tenant_id", payload.TenantID), slog.Int64("flagged", flagged))
	}
	return nil
}
