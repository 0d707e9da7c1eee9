package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/ccielab/enrollment-service/internal/entity"
	"github.com/ccielab/enrollment-service/internal/infra/http/middleware"
	"github.com/ccielab/enrollment-service/internal/infra/queue"
)

type ConfirmEnrollmentInput struct {
	EnrollmentID      string `json:"enrollment_id"`
	Gateway           string `json:"gateway"`
	ConfirmationToken string `json:"gateway_confirmation_token"`
}

type ConfirmEnrollmentOutput struct {
	EnrollmentID string `json:"enrollment_id"`
	State        string `json:"state"`
	ApprovalURL  string `json:"approval_url,omitempty"`
	ClientToken  string `json:"client_token,omitempty"`
	Msg          string `json:"msg"`
}

type ConfirmEnrollmentUseCase struct {
	Repo       entity.EnrollmentRepository
	Directory  ContactDirectory
	Gateways   map[string]PaymentGateway
	Notifier   NotificationDispatcher
	StaffEmail string

	// CRM retry policy once money has moved.
	RetryBase      time.Duration
	RetryCap       time.Duration
	MaxCRMAttempts int
}

func NewConfirmEnrollmentUseCase(
	repo entity.EnrollmentRepository,
	directory ContactDirectory,
	gateways []PaymentGateway,
	notifier NotificationDispatcher,
	staffEmail string,
) *ConfirmEnrollmentUseCase {
	byName := make(map[string]PaymentGateway, len(gateways))
	for _, gw := range gateways {
		byName[gw.Name()] = gw
	}
	return &ConfirmEnrollmentUseCase{
		Repo:           repo,
		Directory:      directory,
		Gateways:       byName,
		Notifier:       notifier,
		StaffEmail:     staffEmail,
		RetryBase:      30 * time.Second,
		RetryCap:       30 * time.Minute,
		MaxCRMAttempts: 12,
	}
}

// Execute drives the saga from the client's confirm call. Everything up to
// PAYMENT_CONFIRMED may fail back to the user; from PAYMENT_CONFIRMED on,
// the charge is real and the only allowed answer is success (possibly
// with CRM sync still pending).
func (uc *ConfirmEnrollmentUseCase) Execute(ctx context.Context, input ConfirmEnrollmentInput) (*ConfirmEnrollmentOutput, error) {
	rec, err := uc.Repo.FindByID(ctx, input.EnrollmentID)
	if err != nil {
		if errors.Is(err, entity.ErrEnrollmentNotFound) {
			return nil, &DomainError{Code: "ENROLLMENT_NOT_FOUND", Message: "unknown enrollment id"}
		}
		return nil, &TechnicalError{Code: "DATABASE_ERROR", Message: err.Error()}
	}

	if rec.State == entity.StateFailed {
		return nil, &DomainError{Code: "ENROLLMENT_FAILED", Message: "this enrollment already failed, start over"}
	}

	// Duplicate client submission after the charge went through: resume
	// whatever is left and report success. Never re-touch the gateway.
	if rec.PaymentCommitted() {
		uc.resume(ctx, rec)
		return uc.successOutput(rec), nil
	}

	if !validGateway(input.Gateway) {
		return nil, &DomainError{Code: "UNSUPPORTED_GATEWAY", Message: "gateway must be PAYPAL or STRIPE"}
	}
	if rec.Intent.Gateway != "" && rec.Intent.Gateway != input.Gateway {
		return nil, &DomainError{Code: "GATEWAY_MISMATCH", Message: "payment was already initiated with " + rec.Intent.Gateway}
	}

	gw, ok := uc.Gateways[input.Gateway]
	if !ok {
		return nil, &DomainError{Code: "UNSUPPORTED_GATEWAY", Message: "gateway " + input.Gateway + " is not configured"}
	}

	// CONTACT_RESOLVED -> PAYMENT_INITIATED. Safely retryable: no charge
	// exists until Confirm succeeds.
	if rec.PayableRef == "" {
		description := fmt.Sprintf("Enrollment %s - %s (%s)", rec.ID, rec.Intent.CourseID, rec.Intent.Plan)
		payable, err := gw.CreatePayable(ctx, rec.Intent.PriceCents, rec.Intent.Currency, description)
		if err != nil {
			if errors.Is(err, entity.ErrInvalidAmount) {
				return nil, &DomainError{Code: "INVALID_AMOUNT", Message: err.Error()}
			}
			return nil, &TechnicalError{Code: "GATEWAY_UNAVAILABLE", Message: "payment could not be initiated, try again"}
		}

		if err := uc.Repo.SavePayableRef(ctx, rec.ID, input.Gateway, payable.ID); err != nil {
			return nil, &TechnicalError{Code: "DATABASE_ERROR", Message: err.Error()}
		}
		if err := uc.Repo.UpdateState(ctx, rec.ID, entity.StatePaymentInitiated, ""); err != nil {
			return nil, &TechnicalError{Code: "DATABASE_ERROR", Message: err.Error()}
		}
		rec.Intent.Gateway = input.Gateway
		rec.PayableRef = payable.ID
		rec.State = entity.StatePaymentInitiated

		// PayPal needs buyer approval between order creation and capture.
		// Hand the approval link back; the client calls confirm again with
		// the approved order id as the token.
		if payable.ApprovalURL != "" && input.ConfirmationToken == "" {
			return &ConfirmEnrollmentOutput{
				EnrollmentID: rec.ID,
				State:        rec.State,
				ApprovalURL:  payable.ApprovalURL,
				Msg:          "approve the payment to finish enrollment",
			}, nil
		}
		if payable.ClientToken != "" && input.ConfirmationToken == "" {
			return &ConfirmEnrollmentOutput{
				EnrollmentID: rec.ID,
				State:        rec.State,
				ClientToken:  payable.ClientToken,
				Msg:          "complete the payment to finish enrollment",
			}, nil
		}
	}

	outcome, err := gw.Confirm(ctx, rec.PayableRef, input.ConfirmationToken)
	switch {
	case errors.Is(err, ErrAlreadyConfirmed):
		// Duplicate capture. Use the previously recorded outcome; this is
		// an idempotent read, not a new charge.
		if outcome == nil {
			outcome = rec.Outcome
		}
		if outcome == nil {
			return nil, &TechnicalError{Code: "GATEWAY_INCONSISTENT", Message: "payable captured elsewhere but no outcome on file"}
		}
	case errors.Is(err, ErrPaymentDeclined):
		middleware.RecordPayment(input.Gateway, "declined")
		if dbErr := uc.Repo.UpdateState(ctx, rec.ID, entity.StateFailed, err.Error()); dbErr != nil {
			log.Printf("⚠️ failed to persist FAILED state for %s: %v", rec.ID, dbErr)
		}
		return nil, &DomainError{Code: "PAYMENT_DECLINED", Message: "the payment was declined, no charge was made"}
	case errors.Is(err, ErrGatewayUnavailable):
		return nil, &TechnicalError{Code: "GATEWAY_UNAVAILABLE", Message: "payment gateway unavailable, no charge was made, try again"}
	case err != nil:
		return nil, fmt.Errorf("payment confirmation failed: %w", err)
	}

	switch outcome.Status {
	case entity.OutcomePending:
		// Wallet/redirect flow: the gateway will tell us via webhook,
		// keyed by the payable id.
		return &ConfirmEnrollmentOutput{
			EnrollmentID: rec.ID,
			State:        rec.State,
			Msg:          "payment pending gateway confirmation",
		}, nil
	case entity.OutcomeCanceled, entity.OutcomeFailed:
		middleware.RecordPayment(input.Gateway, "failed")
		if dbErr := uc.Repo.UpdateState(ctx, rec.ID, entity.StateFailed, "outcome "+outcome.Status); dbErr != nil {
			log.Printf("⚠️ failed to persist FAILED state for %s: %v", rec.ID, dbErr)
		}
		return nil, &DomainError{Code: "PAYMENT_DECLINED", Message: "the payment did not complete, no enrollment was made"}
	}

	final, err := uc.commitOutcome(ctx, rec, outcome)
	if err != nil {
		return nil, err
	}
	return uc.successOutput(final), nil
}

// HandleGatewayEvent resumes a saga from an asynchronous gateway webhook
// (Stripe redirect methods, PayPal capture notifications). Returning a
// non-nil error makes the queue worker redeliver.
func (uc *ConfirmEnrollmentUseCase) HandleGatewayEvent(ctx context.Context, ev queue.ConfirmationPayload) error {
	rec, err := uc.Repo.FindByPayableRef(ctx, ev.Gateway, ev.PayableRef)
	if err != nil {
		if errors.Is(err, entity.ErrEnrollmentNotFound) {
			log.Printf("⚠️ webhook for unknown payable %s/%s, dropping", ev.Gateway, ev.PayableRef)
			return nil
		}
		return err
	}

	if ev.Status != entity.OutcomeSucceeded {
		if !rec.PaymentCommitted() && !rec.Terminal() {
			return uc.Repo.UpdateState(ctx, rec.ID, entity.StateFailed, "gateway reported "+ev.Status)
		}
		return nil
	}

	outcome := &entity.PaymentOutcome{
		Gateway:       ev.Gateway,
		TransactionID: ev.TransactionID,
		AmountCents:   ev.AmountCents,
		Currency:      ev.Currency,
		Status:        entity.OutcomeSucceeded,
	}
	if outcome.AmountCents == 0 {
		outcome.AmountCents = rec.Intent.PriceCents
		outcome.Currency = rec.Intent.Currency
	}

	if _, err := uc.commitOutcome(ctx, rec, outcome); err != nil {
		// Technical failures bubble up for redelivery; domain errors are
		// final and must not poison the queue.
		if IsDomainError(err) {
			log.Printf("⚠️ webhook for %s rejected: %v", rec.ID, err)
			return nil
		}
		return err
	}
	return nil
}

// commitOutcome claims the transaction id, persists PAYMENT_CONFIRMED and
// runs forward recovery. The claim is the idempotency guard: out of N
// concurrent callbacks for one transaction, exactly one wins.
func (uc *ConfirmEnrollmentUseCase) commitOutcome(ctx context.Context, rec *entity.EnrollmentRecord, outcome *entity.PaymentOutcome) (*entity.EnrollmentRecord, error) {
	claimed, err := uc.Repo.ClaimTransaction(ctx, outcome.Gateway, outcome.TransactionID, rec.ID)
	if err != nil {
		return nil, &TechnicalError{Code: "DATABASE_ERROR", Message: "idempotency claim failed: " + err.Error()}
	}

	if !claimed {
		owner, err := uc.Repo.FindByTransactionID(ctx, outcome.Gateway, outcome.TransactionID)
		if err != nil {
			return nil, &TechnicalError{Code: "DATABASE_ERROR", Message: err.Error()}
		}
		if owner.ID != rec.ID {
			// Someone else owns this charge. Replay, no-op.
			log.Printf("🔁 duplicate confirm for txn %s, owned by %s", outcome.TransactionID, owner.ID)
			return owner, nil
		}
		// Our own retry after a crash between claim and resume. The
		// outcome write may never have landed; we hold the outcome, so
		// repair the record before resuming instead of stranding it.
		if owner.Outcome == nil {
			uc.persistOutcome(ctx, owner, outcome)
		}
		rec = owner
	} else {
		uc.persistOutcome(ctx, rec, outcome)
		middleware.RecordPayment(outcome.Gateway, "confirmed")
	}

	uc.resume(ctx, rec)
	return rec, nil
}

// persistOutcome writes the outcome to the record. The claim has already
// landed at this point, so a failed write must never surface to someone
// who already paid: keep the outcome in memory, push the saga forward,
// and let the claim row recover the write on the next retry.
func (uc *ConfirmEnrollmentUseCase) persistOutcome(ctx context.Context, rec *entity.EnrollmentRecord, outcome *entity.PaymentOutcome) {
	if err := uc.Repo.SaveOutcome(ctx, rec.ID, outcome, entity.StatePaymentConfirmed); err != nil {
		log.Printf("⚠️ could not persist outcome for %s (txn %s): %v", rec.ID, outcome.TransactionID, err)
	}
	now := time.Now()
	rec.Outcome = outcome
	rec.State = entity.StatePaymentConfirmed
	rec.ConfirmedAt = &now
}

// resume runs the post-payment, forward-only part of the saga: CRM update,
// then notifications. Failures never propagate to the user; they park the
// record in a recoverable state for the reconciliation sweep.
func (uc *ConfirmEnrollmentUseCase) resume(ctx context.Context, rec *entity.EnrollmentRecord) {
	if rec.Terminal() || rec.Outcome == nil {
		return
	}

	saga := NewSaga()

	saga.AddStep("crm_update",
		func() bool { return rec.CRMUpdated },
		func(ctx context.Context) error {
			err := uc.Directory.RecordEnrollment(ctx, rec.Intent.ContactID, CRMEnrollment{
				Email:         rec.Intent.Email,
				CourseID:      rec.Intent.CourseID,
				Plan:          rec.Intent.Plan,
				AmountCents:   rec.Outcome.AmountCents,
				Currency:      rec.Outcome.Currency,
				TransactionID: rec.Outcome.TransactionID,
			})
			if err != nil {
				return err
			}
			if err := uc.Repo.MarkCRMUpdated(ctx, rec.ID); err != nil {
				return err
			}
			rec.CRMUpdated = true
			rec.State = entity.StateCRMUpdated
			return nil
		})

	saga.AddStep("notify_customer",
		func() bool { return rec.CustomerNotified },
		func(ctx context.Context) error {
			return uc.notify(ctx, rec, NotifyCustomerConfirmation, rec.Intent.Email,
				func() { rec.CustomerNotified = true })
		})

	saga.AddStep("notify_staff",
		func() bool { return rec.StaffNotified || uc.StaffEmail == "" },
		func(ctx context.Context) error {
			return uc.notify(ctx, rec, NotifyStaffEnrollment, uc.StaffEmail,
				func() { rec.StaffNotified = true })
		})

	if err := saga.Execute(ctx); err != nil {
		var stepErr *StepError
		errors.As(err, &stepErr)

		if stepErr != nil && stepErr.Step == "crm_update" {
			// Money moved, CRM didn't. Park for decoupled retry, never
			// touch the payment again.
			attempts := rec.CRMAttempts + 1
			middleware.RecordCRMRetry()
			if attempts > uc.MaxCRMAttempts {
				log.Printf("🚨 enrollment %s exceeded %d CRM attempts, parked for support", rec.ID, uc.MaxCRMAttempts)
				if dbErr := uc.Repo.UpdateState(ctx, rec.ID, entity.StateCRMPending, "crm retries exhausted: "+stepErr.Err.Error()); dbErr != nil {
					log.Printf("⚠️ could not park %s: %v", rec.ID, dbErr)
				}
				rec.State = entity.StateCRMPending
				return
			}
			nextAt := time.Now().Add(uc.backoff(attempts))
			if dbErr := uc.Repo.ScheduleCRMRetry(ctx, rec.ID, attempts, nextAt); dbErr != nil {
				log.Printf("⚠️ could not schedule CRM retry for %s: %v", rec.ID, dbErr)
			}
			if dbErr := uc.Repo.UpdateState(ctx, rec.ID, entity.StateCRMPending, stepErr.Err.Error()); dbErr != nil {
				log.Printf("⚠️ could not persist CRM_PENDING for %s: %v", rec.ID, dbErr)
			}
			rec.State = entity.StateCRMPending
			rec.CRMAttempts = attempts
			log.Printf("🔄 enrollment %s parked in %s, retry #%d at %s", rec.ID, rec.State, attempts, nextAt.Format(time.RFC3339))
			return
		}

		// Notification failure: CRM state stands, sweep retries the mail.
		if rec.State == entity.StateCRMUpdated || rec.CRMUpdated {
			if dbErr := uc.Repo.UpdateState(ctx, rec.ID, entity.StateCRMUpdated, ""); dbErr != nil {
				log.Printf("⚠️ could not persist CRM_UPDATED for %s: %v", rec.ID, dbErr)
			}
			rec.State = entity.StateCRMUpdated
		}
		log.Printf("⚠️ enrollment %s left in %s: %v", rec.ID, rec.State, err)
		return
	}

	if err := uc.Repo.UpdateState(ctx, rec.ID, entity.StateNotified, ""); err != nil {
		log.Printf("⚠️ could not persist NOTIFIED for %s: %v", rec.ID, err)
		return
	}
	rec.State = entity.StateNotified
	log.Printf("✅ enrollment %s complete: %s enrolled in %s", rec.ID, rec.Intent.Email, rec.Intent.CourseID)
}

func (uc *ConfirmEnrollmentUseCase) notify(ctx context.Context, rec *entity.EnrollmentRecord, kind, recipient string, mark func()) error {
	err := uc.Notifier.Notify(kind, recipient, NotificationParams{
		Name:     rec.Intent.Name,
		Course:   rec.Intent.CourseID,
		Plan:     rec.Intent.Plan,
		Amount:   entity.FormatAmount(rec.Outcome.AmountCents),
		Email:    rec.Intent.Email,
		TxnID:    rec.Outcome.TransactionID,
		EnrollID: rec.ID,
	})
	if err != nil {
		middleware.RecordNotification(kind, "error")
		if errors.Is(err, ErrPermanentSend) {
			// No retry will fix a malformed address. Mark the kind as
			// handled so the sweep doesn't spin on it, and record the
			// non-delivery on the record so support can see it.
			log.Printf("⚠️ permanent send failure for %s (%s): %v", rec.ID, kind, err)
			if dbErr := uc.Repo.UpdateState(ctx, rec.ID, rec.State, "notification not delivered ("+kind+"): "+err.Error()); dbErr != nil {
				log.Printf("⚠️ could not record send failure for %s: %v", rec.ID, dbErr)
			}
			if dbErr := uc.Repo.MarkNotified(ctx, rec.ID, kind); dbErr != nil {
				return dbErr
			}
			mark()
			return nil
		}
		return err
	}
	middleware.RecordNotification(kind, "sent")
	if dbErr := uc.Repo.MarkNotified(ctx, rec.ID, kind); dbErr != nil {
		return dbErr
	}
	mark()
	return nil
}

// backoff: exponential with jitter, capped.
func (uc *ConfirmEnrollmentUseCase) backoff(attempt int) time.Duration {
	d := uc.RetryBase
	for i := 1; i < attempt && d < uc.RetryCap; i++ {
		d *= 2
	}
	if d > uc.RetryCap {
		d = uc.RetryCap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}

func (uc *ConfirmEnrollmentUseCase) successOutput(rec *entity.EnrollmentRecord) *ConfirmEnrollmentOutput {
	msg := "enrollment complete, confirmation sent"
	if rec.State == entity.StateCRMPending || rec.State == entity.StatePaymentConfirmed {
		// The user paid. Whatever is still syncing is our problem.
		msg = "payment received, enrollment confirmation on its way"
	}
	return &ConfirmEnrollmentOutput{
		EnrollmentID: rec.ID,
		State:        rec.State,
		Msg:          msg,
	}
}
