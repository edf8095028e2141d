// Package rabbitmqtest provides testify mocks for the rabbitmq broker surface.
package rabbitmqtest

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"

	"github.com/glimte/rabbitrpc/internal/rabbitmq"
)

// Channel mocks rabbitmq.Channel
type Channel struct {
	mock.Mock
}

func (m *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	mockArgs := m.Called(name, durable, autoDelete, exclusive, noWait, args)
	return amqp.Queue{Name: name}, mockArgs.Error(0)
}

func (m *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	args := m.Called(prefetchCount, prefetchSize, global)
	return args.Error(0)
}

func (m *Channel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	mockArgs := m.Called(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
	if mockArgs.Get(0) == nil {
		return nil, mockArgs.Error(1)
	}
	return mockArgs.Get(0).(<-chan amqp.Delivery), mockArgs.Error(1)
}

func (m *Channel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func (m *Channel) Cancel(consumer string, noWait bool) error {
	args := m.Called(consumer, noWait)
	return args.Error(0)
}

func (m *Channel) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Connection mocks rabbitmq.Connection
type Connection struct {
	mock.Mock
}

func (m *Connection) Channel() (rabbitmq.Channel, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(rabbitmq.Channel), args.Error(1)
}

func (m *Connection) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *Connection) IsClosed() bool {
	args := m.Called()
	return args.Bool(0)
}

// Dialer mocks rabbitmq.Dialer
type Dialer struct {
	mock.Mock
}

func (m *Dialer) Dial(ctx context.Context, url string, config amqp.Config) (rabbitmq.Connection, error) {
	args := m.Called(ctx, url, config)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(rabbitmq.Connection), args.Error(1)
}

// Acknowledger mocks amqp.Acknowledger for deliveries
type Acknowledger struct {
	mock.Mock
}

func (m *Acknowledger) Ack(tag uint64, multiple bool) error {
	args := m.Called(tag, multiple)
	return args.Error(0)
}

func (m *Acknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	args := m.Called(tag, multiple, requeue)
	return args.Error(0)
}

func (m *Acknowledger) Reject(tag uint64, requeue bool) error {
	args := m.Called(tag, requeue)
	return args.Error(0)
}

// Deliveries returns a receive-only delivery stream fed by the returned
// send side, as amqp.Channel.Consume would.
func Deliveries(buffer int) (chan amqp.Delivery, <-chan amqp.Delivery) {
	ch := make(chan amqp.Delivery, buffer)
	return ch, ch
}
