package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInterestRun posts accrued deposit interest for a tenant.
	TaskInterestRun = "deposits:interest_run"
	// TaskLoanOverdueScan flags past-due loan installments.
	TaskLoanOverdueScan = "loans:overdue_scan"
)

// InterestRunPayload identifies one interest run.
type InterestRunPayload struct {
	TenantID int64     `json:"tenant_id"`
	AsOf     time.Time `json:"as_of"`
}

// NewInterestRunTask constructs an Asynq task for the accrual run.
func NewInterestRunTask(payload InterestRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInterestRun, data), nil
}

// LoanOverdueScanPayload identifies one overdue scan.
type LoanOverdueScanPayload struct {
	TenantID int64     `json:"tenant_id"`
	AsOf     time.Time `json:"as_of"`
}

// NewLoanOverdueScanTask constructs an Asynq task for the overdue scan.
func NewLoanOverdueScanTask(payload LoanOverdueScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLoanOverdueScan, data), nil
}
