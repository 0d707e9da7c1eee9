package usecase

import (
	"context"

	"github.com/ccielab/enrollment-service/internal/entity"
)

// ContactDirectory wraps the CRM. FindOrCreate is lookup-then-create and is
// NOT atomic against the remote side; a race produces at most a duplicate
// contact, which we accept over inventing consistency the CRM doesn't offer.
type ContactDirectory interface {
	FindOrCreate(ctx context.Context, email string, fields entity.ProfileFields) (entity.ContactRef, error)
	RecordEnrollment(ctx context.Context, contactID string, enr CRMEnrollment) error
}

// CRMEnrollment is everything the CRM needs once money has moved: flip the
// lead to ENROLLED, create/associate the deal, record amount and txn id.
type CRMEnrollment struct {
	Email         string
	CourseID      string
	Plan          string
	AmountCents   int64
	Currency      string
	TransactionID string
}

// PayableRef is a gateway-specific pending-payment object: a PayPal order
// or a Stripe payment intent.
type PayableRef struct {
	Gateway     string
	ID          string
	ClientToken string // Stripe client_secret; empty for PayPal
	ApprovalURL string // PayPal approve link; empty for Stripe
}

// PaymentGateway normalizes two providers behind one contract. Confirm
// returns ErrAlreadyConfirmed together with the original outcome when the
// same payable is captured twice, so the orchestrator can tell a first
// capture from a duplicate notification.
type PaymentGateway interface {
	Name() string
	CreatePayable(ctx context.Context, amountCents int64, currency, description string) (PayableRef, error)
	Confirm(ctx context.Context, payableID, confirmationToken string) (*entity.PaymentOutcome, error)
}

// Notification kinds. Each (record, kind) pair is sent at most once.
const (
	NotifyCustomerConfirmation = "CUSTOMER_CONFIRMATION"
	NotifyStaffEnrollment      = "STAFF_ENROLLMENT"
)

type NotificationParams struct {
	Name     string
	Course   string
	Plan     string
	Amount   string // display string, already formatted
	Email    string
	TxnID    string
	EnrollID string
}

type NotificationDispatcher interface {
	Notify(kind, recipient string, params NotificationParams) error
}
