package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/lotline/lotline/internal/ledger"
	"github.com/lotline/lotline/internal/observability"
)

// LedgerReconciler is the slice of the ledger service the job needs.
type LedgerReconciler interface {
	Reconcile(ctx context.Context, customerID int64) (ledger.RecalcResult, error)
	ReconcileAll(ctx context.Context) (ledger.BatchResult, error)
}

// NewLedgerReconcileHandler builds the handler for TaskLedgerReconcile. A
// failing customer never fails the task; only infrastructure errors trigger
// an Asynq retry.
func NewLedgerReconcileHandler(svc LedgerReconciler, metrics *observability.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LedgerReconcilePayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}

		if payload.CustomerID != 0 {
			result, err := svc.Reconcile(ctx, payload.CustomerID)
			if err != nil {
				metrics.ObserveReconcile("error")
				return err
			}
			metrics.ObserveReconcile("ok")
			logger.Info("ledger reconciled",
				slog.Int64("customer_id", payload.CustomerID),
				slog.Int("changed", result.ChangedCount),
				slog.Int("skipped", len(result.Skipped)))
			return nil
		}

		batch, err := svc.ReconcileAll(ctx)
		if err != nil {
			metrics.ObserveReconcile("error")
			return err
		}
		outcome := "ok"
		if len(batch.Failures) > 0 {
			outcome = "partial"
		}
		metrics.ObserveReconcile(outcome)
		logger.Info("ledger reconciliation sweep finished",
			slog.Int("customers", batch.Customers),
			slog.Int("changed", batch.ChangedTotal),
			slog.Int("skipped", batch.SkippedTotal),
			slog.Int("failures", len(batch.Failures)))
		for _, failure := range batch.Failures {
			logger.Error("ledger reconcile customer failed",
				slog.Int64("customer_id", failure.CustomerID),
				slog.Any("error", failure.Err))
		}
		return nil
	}
}
