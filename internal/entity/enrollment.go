package entity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Saga states. FAILED is terminal and only reachable before a real charge
// exists; from PAYMENT_CONFIRMED onwards recovery is forward-only.
const (
	StateDraft            = "DRAFT"
	StateContactResolved  = "CONTACT_RESOLVED"
	StatePaymentInitiated = "PAYMENT_INITIATED"
	StatePaymentConfirmed = "PAYMENT_CONFIRMED"
	StateCRMPending       = "PAYMENT_CONFIRMED_CRM_PENDING"
	StateCRMUpdated       = "CRM_UPDATED"
	StateNotified         = "NOTIFIED"
	StateFailed           = "FAILED"
)

const (
	GatewayPayPal = "PAYPAL"
	GatewayStripe = "STRIPE"
)

// PaymentOutcome statuses, normalized across gateways.
const (
	OutcomeSucceeded = "SUCCEEDED"
	OutcomeFailed    = "FAILED"
	OutcomeCanceled  = "CANCELED"
	OutcomePending   = "PENDING" // Stripe redirect flows; resumed via webhook
)

var ErrEnrollmentNotFound = errors.New("enrollment not found")

// EnrollmentIntent is one attempt to enroll. Immutable once payment is
// initiated; the record snapshot keeps it across client reloads.
type EnrollmentIntent struct {
	ContactID  string `json:"contact_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	CourseID   string `json:"course_id"`
	Plan       string `json:"plan"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
	Gateway    string `json:"gateway"` // PAYPAL, STRIPE
}

// PaymentOutcome is produced exactly once per successful capture.
// TransactionID is the idempotency key for everything downstream.
type PaymentOutcome struct {
	Gateway       string `json:"gateway"`
	TransactionID string `json:"external_transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
}

// EnrollmentRecord is the durable result of a saga run. The side-effect
// flags let a retried or resumed saga skip steps that already committed
// instead of replaying them.
type EnrollmentRecord struct {
	ID         string           `json:"id"`
	State      string           `json:"state"`
	FailReason string           `json:"fail_reason,omitempty"`
	Intent     EnrollmentIntent `json:"intent"`
	PayableRef string           `json:"payable_ref,omitempty"` // PayPal order id / Stripe intent id
	Outcome    *PaymentOutcome  `json:"outcome,omitempty"`

	CRMUpdated       bool `json:"crm_updated"`
	CustomerNotified bool `json:"customer_notified"`
	StaffNotified    bool `json:"staff_notified"`

	CRMAttempts int        `json:"crm_attempts"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func NewEnrollmentRecord(intent EnrollmentIntent) *EnrollmentRecord {
	now := time.Now()
	return &EnrollmentRecord{
		ID:        uuid.New().String(),
		State:     StateDraft,
		Intent:    intent,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Terminal reports whether the saga has nothing left to do.
func (r *EnrollmentRecord) Terminal() bool {
	return r.State == StateNotified || r.State == StateFailed
}

// PaymentCommitted reports whether a real charge exists, which forbids any
// user-facing failure from here on.
func (r *EnrollmentRecord) PaymentCommitted() bool {
	switch r.State {
	case StatePaymentConfirmed, StateCRMPending, StateCRMUpdated, StateNotified:
		return true
	}
	return false
}

type EnrollmentRepository interface {
	Create(ctx context.Context, rec *EnrollmentRecord) error
	FindByID(ctx context.Context, id string) (*EnrollmentRecord, error)
	FindByTransactionID(ctx context.Context, gateway, txnID string) (*EnrollmentRecord, error)
	FindByPayableRef(ctx context.Context, gateway, payableRef string) (*EnrollmentRecord, error)

	// ClaimTransaction atomically binds (gateway, txnID) to recordID.
	// Returns false when another saga already owns the transaction; the
	// loser must treat the whole confirm as a no-op replay.
	ClaimTransaction(ctx context.Context, gateway, txnID, recordID string) (bool, error)

	UpdateState(ctx context.Context, id, state, failReason string) error
	SavePayableRef(ctx context.Context, id, gateway, payableRef string) error
	SaveOutcome(ctx context.Context, id string, outcome *PaymentOutcome, state string) error
	MarkCRMUpdated(ctx context.Context, id string) error
	MarkNotified(ctx context.Context, id, kind string) error
	ScheduleCRMRetry(ctx context.Context, id string, attempts int, nextAt time.Time) error

	ListCRMPending(ctx context.Context, now time.Time, limit int) ([]*EnrollmentRecord, error)
	ListUnnotified(ctx context.Context, limit int) ([]*EnrollmentRecord, error)
	DeleteAbandoned(ctx context.Context, olderThan time.Time) (int64, error)
}
