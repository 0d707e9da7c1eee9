package mockpay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ccielab/enrollment-service/internal/entity"
)

func TestGatewayRoundTrip(t *testing.T) {
	g := NewGateway("STRIPE")

	ref, err := g.CreatePayable(context.Background(), 1999, "USD", "Enrollment enr-1")
	assert.NoError(t, err)
	assert.Equal(t, "STRIPE", ref.Gateway)
	assert.NotEmpty(t, ref.ClientToken)

	outcome, err := g.Confirm(context.Background(), ref.ID, ref.ClientToken)
	assert.NoError(t, err)
	assert.Equal(t, entity.OutcomeSucceeded, outcome.Status)
	assert.Equal(t, int64(1999), outcome.AmountCents)
	assert.Equal(t, "USD", outcome.Currency)
}

func TestGatewayRejectsInvalidAmount(t *testing.T) {
	g := NewGateway("PAYPAL")

	_, err := g.CreatePayable(context.Background(), 0, "USD", "Enrollment enr-1")
	assert.ErrorIs(t, err, entity.ErrInvalidAmount)
}

func TestGatewayConfirmUnknownPayable(t *testing.T) {
	g := NewGateway("STRIPE")

	outcome, err := g.Confirm(context.Background(), "mock_nope", "token")

	// A payable that was never created must not confirm as a free success.
	assert.Error(t, err)
	assert.Nil(t, outcome)
}
