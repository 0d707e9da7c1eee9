package queue

import (
	"context"
	"encoding/json"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConfirmationHandler is implemented by the confirm-enrollment use case.
// A returned error means "redeliver"; nil means the event is handled
// (including handled-as-duplicate).
type ConfirmationHandler interface {
	HandleGatewayEvent(ctx context.Context, payload ConfirmationPayload) error
}

type Worker struct {
	Channel *amqp.Channel
	Handler ConfirmationHandler
}

func NewWorker(ch *amqp.Channel, handler ConfirmationHandler) *Worker {
	return &Worker{
		Channel: ch,
		Handler: handler,
	}
}

func (w *Worker) Start(queueName string) {
	msgs, err := w.Channel.Consume(
		queueName,
		"",    // consumer
		false, // auto-ack off: only ack after the saga step committed
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		log.Fatalf("❌ failed to register RabbitMQ consumer: %s", err)
	}

	forever := make(chan bool)

	go func() {
		for d := range msgs {
			var payload ConfirmationPayload
			if err := json.Unmarshal(d.Body, &payload); err != nil {
				log.Printf("❌ [WORKER] malformed confirmation, sending to DLQ: %s", err)
				d.Nack(false, false)
				continue
			}

			log.Printf("📥 [WORKER] gateway event %s/%s (txn %s)", payload.Gateway, payload.PayableRef, payload.TransactionID)

			if err := w.Handler.HandleGatewayEvent(context.Background(), payload); err != nil {
				log.Printf("❌ [WORKER] processing failed, requeueing once via DLQ: %s", err)
				d.Nack(false, false)
			} else {
				d.Ack(false)
			}
		}
	}()

	log.Printf(" [*] confirmation worker waiting on queue '%s'", queueName)
	<-forever
}
