package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConfirmationPayload carries an asynchronous payment confirmation from a
// gateway webhook to the saga worker. PayableRef is the join key back to
// the enrollment record (Stripe intent id / PayPal order id);
// TransactionID is the idempotency key for the side effects.
type ConfirmationPayload struct {
	Gateway       string `json:"gateway"` // PAYPAL, STRIPE
	PayableRef    string `json:"payable_ref"`
	TransactionID string `json:"external_transaction_id"`
	Status        string `json:"status"` // SUCCEEDED, FAILED, CANCELED
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	EventID       string `json:"event_id"`
	Origin        string `json:"origin"` // WEBHOOK_STRIPE, WEBHOOK_PAYPAL
}

type Producer interface {
	PublishConfirmation(ctx context.Context, payload ConfirmationPayload) error
}

type RabbitMQProducer struct {
	Conn *amqp.Connection
	Ch   *amqp.Channel
}

func NewProducer(conn *amqp.Connection, ch *amqp.Channel) *RabbitMQProducer {
	return &RabbitMQProducer{
		Conn: conn,
		Ch:   ch,
	}
}

func (p *RabbitMQProducer) PublishConfirmation(ctx context.Context, payload ConfirmationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal confirmation payload: %v", err)
	}

	err = p.Ch.PublishWithContext(ctx,
		ExchangeName,
		RoutingKey,
		false, // Mandatory
		false, // Immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent, // survives broker restart
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish confirmation: %v", err)
	}

	return nil
}
