package stripe

// Stripe payment intent, trimmed to the fields the adapter reads.
type paymentIntent struct {
	ID           string `json:"id"`
	Status       string `json:"status"` // requires_payment_method, requires_action, processing, succeeded, canceled
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	ClientSecret string `json:"client_secret"`

	LastPaymentError *stripeError `json:"last_payment_error"`
}

type stripeError struct {
	Type        string `json:"type"` // card_error, invalid_request_error, api_error
	Code        string `json:"code"`
	Message     string `json:"message"`
	DeclineCode string `json:"decline_code"`
}

type errorResponse struct {
	Error *stripeError `json:"error"`
}
