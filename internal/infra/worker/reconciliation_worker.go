package worker

import (
	"context"
	"log"
	"time"

	"github.com/ccielab/enrollment-service/internal/usecase"
)

// ReconciliationWorker runs the sweep on a fixed tick. It is the safety
// net for sagas that stalled after payment: CRM sync retries, unsent
// notifications, and garbage collection of abandoned drafts.
type ReconciliationWorker struct {
	reconcile    *usecase.ReconcileEnrollmentsUseCase
	tickInterval time.Duration
}

func NewReconciliationWorker(reconcile *usecase.ReconcileEnrollmentsUseCase) *ReconciliationWorker {
	return &ReconciliationWorker{
		reconcile:    reconcile,
		tickInterval: 1 * time.Minute,
	}
}

func (w *ReconciliationWorker) Start(ctx context.Context) {
	log.Println("🕒 reconciliation worker started (1min tick)")

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	w.reconcile.Execute(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("⚠️ reconciliation worker stopped")
			return
		case <-ticker.C:
			w.reconcile.Execute(ctx)
		}
	}
}
