package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ccielab/enrollment-service/internal/entity"
	"github.com/ccielab/enrollment-service/internal/infra/queue"
)

// WebhookHandler turns asynchronous gateway notifications into queue
// messages. It verifies the signature, normalizes the event and returns
// fast; the saga worker does the actual processing so a slow CRM can
// never block a gateway's delivery.
type WebhookHandler struct {
	Producer            queue.Producer
	StripeWebhookSecret string
	PayPalWebhookSecret string

	// Stripe timestamps older than this are rejected as replays.
	Tolerance time.Duration
}

func NewWebhookHandler(producer queue.Producer, stripeSecret, paypalSecret string) *WebhookHandler {
	return &WebhookHandler{
		Producer:            producer,
		StripeWebhookSecret: stripeSecret,
		PayPalWebhookSecret: paypalSecret,
		Tolerance:           5 * time.Minute,
	}
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	gateway := strings.ToUpper(chi.URLParam(r, "gateway"))

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_body", "could not read body")
		return
	}

	var payload *queue.ConfirmationPayload
	switch gateway {
	case entity.GatewayStripe:
		if !h.verifyStripeSignature(r.Header.Get("Stripe-Signature"), body) {
			writeErrorResponse(w, http.StatusUnauthorized, "invalid_signature", "signature verification failed")
			return
		}
		payload, err = parseStripeEvent(body)
	case entity.GatewayPayPal:
		if !h.verifyPayPalSignature(r.Header.Get("Paypal-Transmission-Sig"), body) {
			writeErrorResponse(w, http.StatusUnauthorized, "invalid_signature", "signature verification failed")
			return
		}
		payload, err = parsePayPalEvent(body)
	default:
		writeErrorResponse(w, http.StatusNotFound, "unknown_gateway", "unknown gateway "+gateway)
		return
	}

	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_event", err.Error())
		return
	}
	if payload == nil {
		// Event type we don't care about. Acknowledge so the gateway
		// stops redelivering.
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.Producer.PublishConfirmation(r.Context(), *payload); err != nil {
		log.Printf("❌ webhook: queue publish failed for %s/%s: %v", payload.Gateway, payload.PayableRef, err)
		// Non-200 makes the gateway retry the delivery later.
		writeErrorResponse(w, http.StatusInternalServerError, "queue_error", "could not enqueue confirmation")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// verifyStripeSignature checks the "t=...,v1=..." scheme: v1 is
// HMAC-SHA256 of "<t>.<body>" under the endpoint secret.
func (h *WebhookHandler) verifyStripeSignature(header string, body []byte) bool {
	if header == "" || h.StripeWebhookSecret == "" {
		return false
	}

	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	if ts == "" || len(sigs) == 0 {
		return false
	}

	tsInt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	age := time.Since(time.Unix(tsInt, 0))
	if age > h.Tolerance || age < -h.Tolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.StripeWebhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return true
		}
	}
	return false
}

// verifyPayPalSignature checks an HMAC-SHA256 of the raw body under the
// shared webhook secret.
func (h *WebhookHandler) verifyPayPalSignature(sig string, body []byte) bool {
	if sig == "" || h.PayPalWebhookSecret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.PayPalWebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sig))
}

func parseStripeEvent(body []byte) (*queue.ConfirmationPayload, error) {
	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID       string `json:"id"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}

	var status string
	switch event.Type {
	case "payment_intent.succeeded":
		status = entity.OutcomeSucceeded
	case "payment_intent.payment_failed":
		status = entity.OutcomeFailed
	case "payment_intent.canceled":
		status = entity.OutcomeCanceled
	default:
		return nil, nil
	}

	return &queue.ConfirmationPayload{
		Gateway:       entity.GatewayStripe,
		PayableRef:    event.Data.Object.ID,
		TransactionID: event.Data.Object.ID,
		Status:        status,
		AmountCents:   event.Data.Object.Amount,
		Currency:      strings.ToUpper(event.Data.Object.Currency),
		EventID:       event.ID,
		Origin:        "WEBHOOK_STRIPE",
	}, nil
}

func parsePayPalEvent(body []byte) (*queue.ConfirmationPayload, error) {
	var event struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Resource  struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Amount struct {
				CurrencyCode string `json:"currency_code"`
				Value        string `json:"value"`
			} `json:"amount"`
			SupplementaryData struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}

	var status string
	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		status = entity.OutcomeSucceeded
	case "PAYMENT.CAPTURE.DENIED":
		status = entity.OutcomeFailed
	default:
		return nil, nil
	}

	cents, err := entity.ParseAmount(event.Resource.Amount.Value)
	if err != nil {
		cents = 0
	}

	return &queue.ConfirmationPayload{
		Gateway:       entity.GatewayPayPal,
		PayableRef:    event.Resource.SupplementaryData.RelatedIDs.OrderID,
		TransactionID: event.Resource.ID,
		Status:        status,
		AmountCents:   cents,
		Currency:      event.Resource.Amount.CurrencyCode,
		EventID:       event.ID,
		Origin:        "WEBHOOK_PAYPAL",
	}, nil
}
