package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ccielab/enrollment-service/internal/entity"
	"github.com/ccielab/enrollment-service/internal/usecase"
)

// Client implements usecase.PaymentGateway against the PayPal Orders v2
// API. CreatePayable maps to order creation (the buyer approves via the
// returned link), Confirm to order capture. Capturing the same order twice
// yields ErrAlreadyConfirmed with the original capture, never a second
// charge.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(clientID, clientSecret, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api-m.paypal.com"
	}
	return &Client{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Name() string {
	return entity.GatewayPayPal
}

func (c *Client) CreatePayable(ctx context.Context, amountCents int64, currency, description string) (usecase.PayableRef, error) {
	if amountCents <= 0 {
		return usecase.PayableRef{}, entity.ErrInvalidAmount
	}

	payload := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{
			{
				Description: description,
				Amount: orderAmount{
					CurrencyCode: strings.ToUpper(currency),
					Value:        entity.FormatAmount(amountCents),
				},
			},
		},
	}

	var order orderResponse
	if err := c.do(ctx, "POST", "/v2/checkout/orders", payload, &order); err != nil {
		return usecase.PayableRef{}, err
	}

	approvalURL := ""
	for _, l := range order.Links {
		if l.Rel == "approve" {
			approvalURL = l.Href
			break
		}
	}

	return usecase.PayableRef{
		Gateway:     entity.GatewayPayPal,
		ID:          order.ID,
		ApprovalURL: approvalURL,
	}, nil
}

func (c *Client) Confirm(ctx context.Context, payableID, confirmationToken string) (*entity.PaymentOutcome, error) {
	// The confirmation token, when present, is the approved order id the
	// buyer came back with. It must match the payable we created.
	orderID := payableID
	if confirmationToken != "" {
		orderID = confirmationToken
	}
	if payableID != "" && confirmationToken != "" && payableID != confirmationToken {
		return nil, fmt.Errorf("%w: token does not match order %s", usecase.ErrPaymentDeclined, payableID)
	}

	var order orderResponse
	err := c.do(ctx, "POST", "/v2/checkout/orders/"+orderID+"/capture", struct{}{}, &order)
	if err != nil {
		var apiErr *captureError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.issue == "ORDER_ALREADY_CAPTURED":
				// Duplicate notification. Fetch the order and surface the
				// original capture so the orchestrator can treat this as
				// an idempotent read.
				prior, getErr := c.getOrder(ctx, orderID)
				if getErr != nil {
					return nil, getErr
				}
				outcome := c.captureOutcome(prior)
				if outcome == nil {
					return nil, fmt.Errorf("paypal order %s marked captured but has no capture", orderID)
				}
				return outcome, usecase.ErrAlreadyConfirmed
			case apiErr.issue == "INSTRUMENT_DECLINED" || apiErr.issue == "PAYER_CANNOT_PAY":
				return nil, fmt.Errorf("%w: %s", usecase.ErrPaymentDeclined, apiErr.issue)
			case apiErr.issue == "ORDER_NOT_APPROVED":
				return nil, fmt.Errorf("%w: buyer has not approved order %s", usecase.ErrPaymentDeclined, orderID)
			}
		}
		return nil, err
	}

	outcome := c.captureOutcome(&order)
	if outcome == nil {
		return nil, fmt.Errorf("paypal capture response for %s carried no capture", orderID)
	}
	return outcome, nil
}

func (c *Client) captureOutcome(order *orderResponse) *entity.PaymentOutcome {
	for _, pu := range order.PurchaseUnits {
		if pu.Payments == nil {
			continue
		}
		for _, cap := range pu.Payments.Captures {
			cents, err := entity.ParseAmount(cap.Amount.Value)
			if err != nil {
				cents = 0
			}
			status := entity.OutcomeSucceeded
			if cap.Status == "DECLINED" || cap.Status == "FAILED" {
				status = entity.OutcomeFailed
			}
			return &entity.PaymentOutcome{
				Gateway:       entity.GatewayPayPal,
				TransactionID: cap.ID,
				AmountCents:   cents,
				Currency:      strings.ToUpper(cap.Amount.CurrencyCode),
				Status:        status,
			}
		}
	}
	return nil
}

func (c *Client) getOrder(ctx context.Context, id string) (*orderResponse, error) {
	var order orderResponse
	if err := c.do(ctx, "GET", "/v2/checkout/orders/"+id, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// captureError keeps the PayPal issue code attached to the Go error.
type captureError struct {
	status int
	issue  string
	msg    string
}

func (e *captureError) Error() string {
	return fmt.Sprintf("paypal error (status %d, issue %s): %s", e.status, e.issue, e.msg)
}

func (c *Client) ensureAuthenticated(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", usecase.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: paypal auth status %d", usecase.ErrGatewayUnavailable, resp.StatusCode)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode paypal token: %w", err)
	}

	c.token = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return c.token, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	token, err := c.ensureAuthenticated(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal paypal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", usecase.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: paypal status %d", usecase.ErrGatewayUnavailable, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiErrorResponse
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &apiErr) == nil && len(apiErr.Details) > 0 {
			return &captureError{status: resp.StatusCode, issue: apiErr.Details[0].Issue, msg: apiErr.Message}
		}
		return fmt.Errorf("paypal rejected %s %s (status %d): %s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode paypal response: %w", err)
	}
	return nil
}
