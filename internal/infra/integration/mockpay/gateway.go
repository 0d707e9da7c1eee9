package mockpay

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ccielab/enrollment-service/internal/entity"
	"github.com/ccielab/enrollment-service/internal/usecase"
)

type payable struct {
	amountCents int64
	currency    string
}

// Gateway is the local-dev stand-in enabled with GATEWAY_MOCK=1. Every
// payable is approved on the first Confirm call; no network, no money.
type Gateway struct {
	GatewayName string

	mu       sync.Mutex
	payables map[string]payable
}

func NewGateway(name string) *Gateway {
	return &Gateway{
		GatewayName: name,
		payables:    make(map[string]payable),
	}
}

func (g *Gateway) Name() string {
	return g.GatewayName
}

func (g *Gateway) CreatePayable(ctx context.Context, amountCents int64, currency, description string) (usecase.PayableRef, error) {
	if amountCents <= 0 {
		return usecase.PayableRef{}, entity.ErrInvalidAmount
	}

	id := "mock_" + uuid.New().String()

	g.mu.Lock()
	g.payables[id] = payable{amountCents: amountCents, currency: currency}
	g.mu.Unlock()

	return usecase.PayableRef{
		Gateway:     g.GatewayName,
		ID:          id,
		ClientToken: id + "_secret",
	}, nil
}

func (g *Gateway) Confirm(ctx context.Context, payableID, confirmationToken string) (*entity.PaymentOutcome, error) {
	g.mu.Lock()
	p, ok := g.payables[payableID]
	g.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("mockpay: unknown payable %s", payableID)
	}

	return &entity.PaymentOutcome{
		Gateway:       g.GatewayName,
		TransactionID: "mocktxn_" + uuid.New().String(),
		AmountCents:   p.amountCents,
		Currency:      p.currency,
		Status:        entity.OutcomeSucceeded,
	}, nil
}
