package rabbitmq

import (
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultConsumerTagPrefix prefixes generated consumer tags
const DefaultConsumerTagPrefix = "rabbitrpc"

// ConsumeOptions describes the queue a consumer is registered on
type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
}

// NewConsumerTag returns a consumer tag unique to this process and broker.
func NewConsumerTag(prefix string) string {
	if prefix == "" {
		prefix = DefaultConsumerTagPrefix
	}
	return prefix + "-" + uuid.NewString()
}

// DeclareAndConsume declares the queue as durable, limits unacknowledged
// deliveries to PrefetchCount and only then registers a manual-ack
// consumer. Any failure is returned as *ConnectionError.
func DeclareAndConsume(ch Channel, opts ConsumeOptions) (<-chan amqp.Delivery, error) {
	if _, err := ch.QueueDeclare(
		opts.Queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return nil, NewConnectionError("queue declare", "", fmt.Errorf("queue %s: %w", opts.Queue, err))
	}

	if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
		return nil, NewConnectionError("qos", "", err)
	}

	deliveries, err := ch.Consume(
		opts.Queue,
		opts.ConsumerTag,
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, NewConnectionError("consume", "", fmt.Errorf("queue %s: %w", opts.Queue, err))
	}

	return deliveries, nil
}
