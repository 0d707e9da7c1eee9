package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ccielab/enrollment-service/internal/entity"
	"github.com/ccielab/enrollment-service/internal/usecase"
)

func TestCreatePayable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/payment_intents", r.URL.Path)

		user, _, _ := r.BasicAuth()
		assert.Equal(t, "sk_test", user)

		r.ParseForm()
		assert.Equal(t, "1999", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))

		json.NewEncoder(w).Encode(paymentIntent{
			ID:           "pi_123",
			Status:       "requires_payment_method",
			Amount:       1999,
			Currency:     "usd",
			ClientSecret: "pi_123_secret",
		})
	}))
	defer server.Close()

	client := NewClient("sk_test", server.URL)

	ref, err := client.CreatePayable(context.Background(), 1999, "USD", "Enrollment enr-1")

	assert.NoError(t, err)
	assert.Equal(t, "pi_123", ref.ID)
	assert.Equal(t, "pi_123_secret", ref.ClientToken)
	assert.Equal(t, entity.GatewayStripe, ref.Gateway)
}

func TestCreatePayableRejectsNonPositiveAmount(t *testing.T) {
	client := NewClient("sk_test", "http://unused.invalid")

	_, err := client.CreatePayable(context.Background(), 0, "USD", "x")

	assert.ErrorIs(t, err, entity.ErrInvalidAmount)
}

func TestConfirm(t *testing.T) {
	t.Run("Succeeded intent becomes a SUCCEEDED outcome", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/payment_intents/pi_123/confirm", r.URL.Path)
			json.NewEncoder(w).Encode(paymentIntent{
				ID: "pi_123", Status: "succeeded", Amount: 1999, Currency: "usd",
			})
		}))
		defer server.Close()

		outcome, err := NewClient("sk_test", server.URL).Confirm(context.Background(), "pi_123", "pm_card_visa")

		assert.NoError(t, err)
		assert.Equal(t, entity.OutcomeSucceeded, outcome.Status)
		assert.Equal(t, "pi_123", outcome.TransactionID)
		assert.Equal(t, int64(1999), outcome.AmountCents)
		assert.Equal(t, "USD", outcome.Currency)
	})

	t.Run("Card error maps to payment declined", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(errorResponse{Error: &stripeError{
				Type: "card_error", Code: "card_declined", Message: "Your card was declined.",
			}})
		}))
		defer server.Close()

		_, err := NewClient("sk_test", server.URL).Confirm(context.Background(), "pi_123", "pm_bad")

		assert.ErrorIs(t, err, usecase.ErrPaymentDeclined)
	})

	t.Run("Requires action is pending, resumed later by webhook", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(paymentIntent{
				ID: "pi_123", Status: "requires_action", Amount: 1999, Currency: "usd",
			})
		}))
		defer server.Close()

		outcome, err := NewClient("sk_test", server.URL).Confirm(context.Background(), "pi_123", "pm_3ds")

		assert.NoError(t, err)
		assert.Equal(t, entity.OutcomePending, outcome.Status)
	})

	t.Run("Already-succeeded intent returns the prior outcome", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == "GET" {
				json.NewEncoder(w).Encode(paymentIntent{
					ID: "pi_123", Status: "succeeded", Amount: 1999, Currency: "usd",
				})
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(errorResponse{Error: &stripeError{
				Type: "invalid_request_error", Code: "payment_intent_unexpected_state",
				Message: "This PaymentIntent has already succeeded.",
			}})
		}))
		defer server.Close()

		outcome, err := NewClient("sk_test", server.URL).Confirm(context.Background(), "pi_123", "pm_card_visa")

		assert.ErrorIs(t, err, usecase.ErrAlreadyConfirmed)
		assert.Equal(t, entity.OutcomeSucceeded, outcome.Status)
		assert.Equal(t, "pi_123", outcome.TransactionID)
	})

	t.Run("Server errors map to gateway unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := NewClient("sk_test", server.URL).Confirm(context.Background(), "pi_123", "pm_card_visa")

		assert.ErrorIs(t, err, usecase.ErrGatewayUnavailable)
	})
}
