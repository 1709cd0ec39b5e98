package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity re-verifies the per-group balance invariant.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskStockReconcile compares stock balances against movement sums.
	TaskStockReconcile = "stock:reconcile"
)

// ScanPayload narrows a background scan to one tenant; zero means all.
type ScanPayload struct {
	TenantID int64 `json:"tenant_id"`
}

// NewLedgerIntegrityTask constructs the ledger integrity task.
func NewLedgerIntegrityTask(payload ScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}

// NewStockReconcileTask constructs the stock reconciliation task.
func NewStockReconcileTask(payload ScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockReconcile, data), nil
}
