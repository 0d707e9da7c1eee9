package usecase

import "errors"

// Sentinel errors returned by the outbound ports. Adapters wrap these with
// %w so the orchestrator can classify with errors.Is.
var (
	// Retryable: the remote side is down or timing out, nothing committed.
	ErrUpstreamUnavailable = errors.New("crm upstream unavailable")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrTransientSend       = errors.New("transient send failure")

	// Terminal, user-facing, no partial state.
	ErrPaymentDeclined = errors.New("payment declined")

	// Not an error for the saga: duplicate capture of the same payable.
	// Adapters return it together with the previously recorded outcome.
	ErrAlreadyConfirmed = errors.New("payment already confirmed")

	// Non-retryable send failure (malformed address etc).
	ErrPermanentSend = errors.New("permanent send failure")
)

// Retryable reports whether the caller may safely try the same call again.
func Retryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrGatewayUnavailable) ||
		errors.Is(err, ErrTransientSend)
}

type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

type TechnicalError struct {
	Code    string
	Message string
}

func (e *TechnicalError) Error() string {
	return e.Message
}

func IsTechnicalError(err error) bool {
	var te *TechnicalError
	return errors.As(err, &te)
}
