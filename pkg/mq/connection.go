package mq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// ExchangeName carries all domain events (milestone.*, stream.*).
	ExchangeName = "events"
)

// NewConnection dials RabbitMQ with a connection name visible in the broker UI.
func NewConnection(url string) (*amqp091.Connection, error) {
	cfg := amqp091.Config{
		Properties: amqp091.Table{"connection_name": "projectstream"},
	}
	conn, err := amqp091.DialConfig(url, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchange declares the durable topic exchange for domain events.
func DeclareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
}
