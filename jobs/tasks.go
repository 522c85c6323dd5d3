// Package jobs defines the background task types and the Asynq worker that
// runs them: the nightly ledger reconciliation sweep and the purchase-lot
// integrity scan.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile recalculates customer ledgers and persists deltas.
	TaskLedgerReconcile = "ledger:reconcile"
	// TaskStockIntegrity scans purchase lots for invariant violations.
	TaskStockIntegrity = "stock:integrity"
)

// LedgerReconcilePayload scopes a reconciliation run. CustomerID zero means
// sweep every customer with ledger history.
type LedgerReconcilePayload struct {
	CustomerID int64 `json:"customer_id,omitempty"`
}

// NewLedgerReconcileTask constructs a reconciliation task.
func NewLedgerReconcileTask(payload LedgerReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, data), nil
}

// NewStockIntegrityTask constructs an integrity-scan task.
func NewStockIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskStockIntegrity, nil)
}
