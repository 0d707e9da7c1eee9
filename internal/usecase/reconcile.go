package usecase

import (
	"context"
	"log"
	"time"

	"github.com/ccielab/enrollment-service/internal/entity"
	"github.com/ccielab/enrollment-service/internal/infra/http/middleware"
)

// ReconcileEnrollmentsUseCase is the background sweep: it picks up sagas
// stuck after payment (CRM sync pending, notifications unsent) and drives
// them forward, decoupled in time from the original request. It also
// garbage-collects pre-payment records the user abandoned.
type ReconcileEnrollmentsUseCase struct {
	Repo      entity.EnrollmentRepository
	Confirm   *ConfirmEnrollmentUseCase
	BatchSize int
	DraftTTL  time.Duration
}

func NewReconcileEnrollmentsUseCase(repo entity.EnrollmentRepository, confirm *ConfirmEnrollmentUseCase) *ReconcileEnrollmentsUseCase {
	return &ReconcileEnrollmentsUseCase{
		Repo:      repo,
		Confirm:   confirm,
		BatchSize: 50,
		DraftTTL:  24 * time.Hour,
	}
}

func (uc *ReconcileEnrollmentsUseCase) Execute(ctx context.Context) {
	middleware.RecordReconciliationRun()

	pending, err := uc.Repo.ListCRMPending(ctx, time.Now(), uc.BatchSize)
	if err != nil {
		log.Printf("❌ reconcile: listing CRM-pending records: %v", err)
	} else {
		for _, rec := range pending {
			uc.Confirm.resume(ctx, rec)
		}
		if len(pending) > 0 {
			log.Printf("🔄 reconcile: touched %d CRM-pending enrollment(s)", len(pending))
		}
	}

	unnotified, err := uc.Repo.ListUnnotified(ctx, uc.BatchSize)
	if err != nil {
		log.Printf("❌ reconcile: listing unnotified records: %v", err)
	} else {
		for _, rec := range unnotified {
			uc.Confirm.resume(ctx, rec)
		}
		if len(unnotified) > 0 {
			log.Printf("📨 reconcile: retried notifications for %d enrollment(s)", len(unnotified))
		}
	}

	// Abandoned pre-payment records have no charge and no value; drop them
	// after the TTL instead of keeping dead drafts around.
	deleted, err := uc.Repo.DeleteAbandoned(ctx, time.Now().Add(-uc.DraftTTL))
	if err != nil {
		log.Printf("❌ reconcile: deleting abandoned drafts: %v", err)
	} else if deleted > 0 {
		log.Printf("🧹 reconcile: removed %d abandoned draft(s)", deleted)
	}
}
