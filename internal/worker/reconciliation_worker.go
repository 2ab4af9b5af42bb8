package worker

import (
	"context"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/observability"
	"go.uber.org/zap"
)

// Reconciler compares the house position with its accounting entries.
type Reconciler interface {
	Run(ctx context.Context) (models.ReconciliationReport, error)
}

// ReconciliationWorker checks the house position at startup and then hourly
// unless configured otherwise. Drift is reported by the reconciler itself;
// the worker only counts outcomes.
type ReconciliationWorker struct {
	*loop
	reconciler Reconciler
}

func NewReconciliationWorker(reconciler Reconciler) *ReconciliationWorker {
	w := &ReconciliationWorker{loop: newLoop("reconciliation", time.Hour, true), reconciler: reconciler}
	w.tick = w.runOnce
	return w
}

func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	w.setInterval(interval)
	return w
}

func (w *ReconciliationWorker) runOnce(ctx context.Context) {
	report, err := w.reconciler.Run(ctx)
	switch {
	case err != nil:
		observability.IncrementWorkerRun(w.name, "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
	case !report.Balanced():
		observability.IncrementWorkerRun(w.name, "drift")
	default:
		observability.IncrementWorkerRun(w.name, "success")
	}
}
