package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ccielab/enrollment-service/internal/entity"
	"github.com/ccielab/enrollment-service/internal/usecase"
)

// Client implements usecase.PaymentGateway against the Stripe REST API.
// CreatePayable maps to payment-intent creation, Confirm to intent
// confirmation. Wallet/redirect methods come back as a Pending outcome;
// the webhook resumes those by intent id.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

func NewClient(secretKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.stripe.com/v1"
	}
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Name() string {
	return entity.GatewayStripe
}

func (c *Client) CreatePayable(ctx context.Context, amountCents int64, currency, description string) (usecase.PayableRef, error) {
	if amountCents <= 0 {
		return usecase.PayableRef{}, entity.ErrInvalidAmount
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("description", description)
	form.Set("automatic_payment_methods[enabled]", "true")

	var intent paymentIntent
	if err := c.do(ctx, "POST", "/payment_intents", form, &intent); err != nil {
		return usecase.PayableRef{}, err
	}

	return usecase.PayableRef{
		Gateway:     entity.GatewayStripe,
		ID:          intent.ID,
		ClientToken: intent.ClientSecret,
	}, nil
}

func (c *Client) Confirm(ctx context.Context, payableID, confirmationToken string) (*entity.PaymentOutcome, error) {
	form := url.Values{}
	if confirmationToken != "" {
		form.Set("payment_method", confirmationToken)
	}

	var intent paymentIntent
	err := c.do(ctx, "POST", "/payment_intents/"+payableID+"/confirm", form, &intent)
	if err != nil {
		var se *stripeError
		var ae *apiError
		if errors.As(err, &ae) {
			se = ae.detail
		}
		if se != nil {
			switch {
			case se.Type == "card_error":
				return nil, fmt.Errorf("%w: %s", usecase.ErrPaymentDeclined, se.Message)
			case se.Code == "payment_intent_unexpected_state":
				// Intent already succeeded: read it back and hand the
				// original outcome to the orchestrator. Idempotent read,
				// no new charge.
				prior, getErr := c.getIntent(ctx, payableID)
				if getErr != nil {
					return nil, getErr
				}
				if prior.Status == "succeeded" {
					return c.outcome(prior), usecase.ErrAlreadyConfirmed
				}
				return nil, fmt.Errorf("stripe intent %s in unexpected state %s", payableID, prior.Status)
			}
		}
		return nil, err
	}

	switch intent.Status {
	case "succeeded":
		return c.outcome(&intent), nil
	case "requires_action", "processing":
		out := c.outcome(&intent)
		out.Status = entity.OutcomePending
		return out, nil
	case "canceled":
		out := c.outcome(&intent)
		out.Status = entity.OutcomeCanceled
		return out, nil
	default:
		if intent.LastPaymentError != nil {
			return nil, fmt.Errorf("%w: %s", usecase.ErrPaymentDeclined, intent.LastPaymentError.Message)
		}
		out := c.outcome(&intent)
		out.Status = entity.OutcomeFailed
		return out, nil
	}
}

func (c *Client) outcome(intent *paymentIntent) *entity.PaymentOutcome {
	return &entity.PaymentOutcome{
		Gateway:       entity.GatewayStripe,
		TransactionID: intent.ID,
		AmountCents:   intent.Amount,
		Currency:      strings.ToUpper(intent.Currency),
		Status:        entity.OutcomeSucceeded,
	}
}

func (c *Client) getIntent(ctx context.Context, id string) (*paymentIntent, error) {
	var intent paymentIntent
	if err := c.do(ctx, "GET", "/payment_intents/"+id, nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// apiError keeps the decoded Stripe error body attached to the Go error.
type apiError struct {
	status int
	detail *stripeError
}

func (e *apiError) Error() string {
	if e.detail != nil {
		return fmt.Sprintf("stripe error (status %d): %s", e.status, e.detail.Message)
	}
	return fmt.Sprintf("stripe error (status %d)", e.status)
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", usecase.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: stripe status %d", usecase.ErrGatewayUnavailable, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp errorResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&errResp); decErr == nil && errResp.Error != nil {
			return &apiError{status: resp.StatusCode, detail: errResp.Error}
		}
		return &apiError{status: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode stripe response: %w", err)
	}
	return nil
}
