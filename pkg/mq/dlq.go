package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const DLQExchangeName = "events.dlq"

// DLQRoutingKey derives the dead-letter queue name for a routing key.
func DLQRoutingKey(routingKey string) string {
	return routingKey + ".dlq"
}

// DeclareDLQExchange declares the durable topic exchange that parks
// messages whose retry budget ran out.
func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		DLQExchangeName,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
}

// DeclareDLQQueue declares and binds the per-routing-key dead letter queue.
// Consumers call this at startup so parked messages survive until an
// operator drains them.
func DeclareDLQQueue(ch *amqp091.Channel, routingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(
		DLQRoutingKey(routingKey),
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, DLQExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}
	return q, nil
}

// PublishToDLQ parks the raw payload on the dead letter exchange with the
// failure reason in the headers.
func (p *Publisher) PublishToDLQ(ctx context.Context, routingKey string, payload []byte, reason string) error {
	return p.publish(ctx, DLQExchangeName, routingKey, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		AppId:        "projectstream",
		Headers: amqp091.Table{
			"x-original-error": reason,
			"x-failed-at":      "projectstream",
		},
	})
}
