package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel the RPC server drives.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Cancel(consumer string, noWait bool) error
	Close() error
}

// Connection is a broker connection able to open channels.
type Connection interface {
	Channel() (Channel, error)
	Close() error
	IsClosed() bool
}

// Dialer opens broker connections.
type Dialer interface {
	Dial(ctx context.Context, url string, config amqp.Config) (Connection, error)
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(ctx context.Context, url string, config amqp.Config) (Connection, error)

// Dial implements Dialer
func (f DialerFunc) Dial(ctx context.Context, url string, config amqp.Config) (Connection, error) {
	return f(ctx, url, config)
}

// AMQPDialer dials real brokers with amqp.DialConfig.
type AMQPDialer struct{}

// Dial establishes a connection, giving up when ctx is done. Errors are
// returned untranslated; callers wrap them into *ConnectionError.
func (AMQPDialer) Dial(ctx context.Context, url string, config amqp.Config) (Connection, error) {
	connChan := make(chan *amqp.Connection, 1)
	errChan := make(chan error, 1)

	go func() {
		conn, err := amqp.DialConfig(url, config)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- conn
	}()

	select {
	case conn := <-connChan:
		return &amqpConnection{conn: conn}, nil

	case err := <-errChan:
		return nil, err

	case <-ctx.Done():
		// A dial that completes after we gave up must not leak its socket.
		go func() {
			select {
			case conn := <-connChan:
				conn.Close()
			case <-errChan:
			}
		}()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrConnectionTimeout
		}
		return nil, ctx.Err()
	}
}

// amqpConnection adapts *amqp.Connection to Connection
type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}

func (c *amqpConnection) IsClosed() bool {
	return c.conn.IsClosed()
}
