package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/lotline/lotline/internal/ledger"
	"github.com/lotline/lotline/internal/observability"
)

type fakeReconciler struct {
	singleCalls []int64
	sweepCalls  int
	singleErr   error
	sweepResult ledger.BatchResult
}

func (f *fakeReconciler) Reconcile(ctx context.Context, customerID int64) (ledger.RecalcResult, error) {
	f.singleCalls = append(f.singleCalls, customerID)
	if f.singleErr != nil {
		return ledger.RecalcResult{}, f.singleErr
	}
	return ledger.RecalcResult{ChangedCount: 1}, nil
}

func (f *fakeReconciler) ReconcileAll(ctx context.Context) (ledger.BatchResult, error) {
	f.sweepCalls++
	return f.sweepResult, nil
}

func TestLedgerReconcileHandlerSingleCustomer(t *testing.T) {
	fake := &fakeReconciler{}
	handler := NewLedgerReconcileHandler(fake, observability.NewMetrics(), slog.Default())

	task, err := NewLedgerReconcileTask(LedgerReconcilePayload{CustomerID: 42})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, []int64{42}, fake.singleCalls)
	require.Zero(t, fake.sweepCalls)
}

func TestLedgerReconcileHandlerSweepsWithoutCustomer(t *testing.T) {
	fake := &fakeReconciler{sweepResult: ledger.BatchResult{Customers: 3, ChangedTotal: 2}}
	handler := NewLedgerReconcileHandler(fake, observability.NewMetrics(), slog.Default())

	task, err := NewLedgerReconcileTask(LedgerReconcilePayload{})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, 1, fake.sweepCalls)
	require.Empty(t, fake.singleCalls)
}

func TestLedgerReconcileHandlerSweepToleratesCustomerFailures(t *testing.T) {
	fake := &fakeReconciler{sweepResult: ledger.BatchResult{
		Customers: 2,
		Failures:  []ledger.CustomerError{{CustomerID: 2, Err: errors.New("boom")}},
	}}
	handler := NewLedgerReconcileHandler(fake, observability.NewMetrics(), slog.Default())

	task, err := NewLedgerReconcileTask(LedgerReconcilePayload{})
	require.NoError(t, err)

	// Per-customer failures are logged, not retried.
	require.NoError(t, handler(context.Background(), task))
}

func TestLedgerReconcileHandlerPropagatesInfrastructureError(t *testing.T) {
	fake := &fakeReconciler{singleErr: errors.New("db down")}
	handler := NewLedgerReconcileHandler(fake, observability.NewMetrics(), slog.Default())

	task, err := NewLedgerReconcileTask(LedgerReconcilePayload{CustomerID: 7})
	require.NoError(t, err)

	require.Error(t, handler(context.Background(), task))
}

func TestLedgerReconcileHandlerSkipsMalformedPayload(t *testing.T) {
	fake := &fakeReconciler{}
	handler := NewLedgerReconcileHandler(fake, observability.NewMetrics(), slog.Default())

	task := asynq.NewTask(TaskLedgerReconcile, []byte("{not json"))
	require.ErrorIs(t, handler(context.Background(), task), asynq.SkipRetry)
}
