// Copyright 2024 Mmate Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rabbitrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/rabbitrpc/internal/rabbitmq"
	"github.com/glimte/rabbitrpc/serialization"
)

// prefetchCount bounds unacknowledged deliveries to this consumer, so
// messages are processed strictly one at a time.
const prefetchCount = 1

// Server consumes RPC requests from one durable queue and publishes
// replies. Each Server owns its connection, channel and settings.
type Server struct {
	handler      Handler
	queue        string
	exchange     string
	settings     ConnectionSettings
	dialer       Dialer
	codec        serialization.Codec
	codecs       *serialization.Registry
	consumerTag  string
	logger       *slog.Logger
	errorHandler ErrorHandler
	metrics      MetricsRecorder

	mu          sync.Mutex
	conn        Connection
	channel     Channel
	running     bool
	stopping    bool
	dispatching bool
	closed      bool
}

// NewServer creates a server that passes requests from queue to handler.
// Connection settings are resolved here; no connection is opened until Run.
func NewServer(handler Handler, queue string, opts ...Option) (*Server, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if queue == "" {
		return nil, ErrEmptyQueue
	}

	cfg := &serverConfig{
		logger:  slog.Default(),
		codec:   serialization.GobCodec{},
		codecs:  serialization.NewDefaultRegistry(),
		dialer:  rabbitmq.AMQPDialer{},
		metrics: noopMetrics{},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	settings, err := Configure(cfg.settings)
	if err != nil {
		return nil, err
	}

	return &Server{
		handler:      Chain(handler, cfg.middleware...),
		queue:        queue,
		exchange:     cfg.exchange,
		settings:     settings,
		dialer:       cfg.dialer,
		codec:        cfg.codec,
		codecs:       cfg.codecs,
		consumerTag:  rabbitmq.NewConsumerTag(cfg.tagPrefix),
		logger:       cfg.logger.With("queue", queue),
		errorHandler: cfg.errorHandler,
		metrics:      cfg.metrics,
	}, nil
}

// Queue returns the queue the server consumes
func (s *Server) Queue() string {
	return s.queue
}

// Exchange returns the exchange replies are published to
func (s *Server) Exchange() string {
	return s.exchange
}

// ConsumerTag returns the tag the consumer is registered under
func (s *Server) ConsumerTag() string {
	return s.consumerTag
}

// ConnectionSettings returns the effective settings. They never contain
// a raw username or password.
func (s *Server) ConnectionSettings() ConnectionSettings {
	return s.settings
}

// IsRunning reports whether the consumer is registered and not stopping
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.channel != nil && !s.stopping
}

// Run connects, registers the consumer and processes deliveries one at a
// time until Stop is called or ctx is done, in which case it returns nil.
// A failure to connect, or the broker closing the delivery stream, is
// returned as *ConnectionError.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopping = false
	s.dispatching = false
	s.closed = false
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.channel = nil
		s.conn = nil
		s.mu.Unlock()
	}()

	ch, deliveries, err := s.connect(ctx)
	if err != nil {
		s.logger.Error("failed to start rpc server", "error", err, "broker", s.settings)
		return err
	}
	defer s.closeConnection()

	s.metrics.ConsumerRunning(true)
	defer s.metrics.ConsumerRunning(false)

	s.logger.Info("rpc server consuming",
		"consumerTag", s.consumerTag,
		"exchange", s.exchange,
		"broker", s.settings,
	)

	return s.consume(ctx, ch, deliveries)
}

// Stop cancels the consumer and closes the channel, each exactly once. It
// may be called from a handler or from another goroutine. When a delivery
// is being processed the channel is closed only after that delivery has
// been replied to and acknowledged; a close failure is then logged rather
// than returned.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel == nil {
		return ErrNotRunning
	}
	if s.stopping {
		return nil
	}
	s.stopping = true

	var errs []error
	if err := s.channel.Cancel(s.consumerTag, false); err != nil {
		errs = append(errs, fmt.Errorf("cancel consumer %s: %w", s.consumerTag, err))
	}
	if !s.dispatching {
		s.closed = true
		if err := s.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	s.logger.Info("rpc server stopped", "consumerTag", s.consumerTag)

	return errors.Join(errs...)
}

// connect dials the broker, opens one channel and registers the consumer
func (s *Server) connect(ctx context.Context) (Channel, <-chan amqp.Delivery, error) {
	config := s.settings.DialConfig()
	uri := s.settings.URI()

	timeout := s.settings.ConnectionTimeout
	if timeout <= 0 {
		timeout = DefaultConnectionTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := s.dialer.Dial(dialCtx, uri, config)
	if err != nil {
		return nil, nil, rabbitmq.NewConnectionError("connect", uri, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, rabbitmq.NewConnectionError("open channel", uri, err)
	}

	deliveries, err := rabbitmq.DeclareAndConsume(ch, rabbitmq.ConsumeOptions{
		Queue:         s.queue,
		ConsumerTag:   s.consumerTag,
		PrefetchCount: prefetchCount,
	})
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.channel = ch
	s.mu.Unlock()

	return ch, deliveries, nil
}

// consume is the blocking loop; one delivery is fully processed before the
// next is read
func (s *Server) consume(ctx context.Context, ch Channel, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			if err := s.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
				s.logger.Error("failed to stop rpc server", "error", err)
			}
			return nil

		case delivery, ok := <-deliveries:
			if s.isStopping() {
				return nil
			}
			if !ok {
				s.logger.Warn("delivery channel closed by broker")
				return rabbitmq.NewConnectionError("consume", s.settings.URI(), ErrChannelClosed)
			}

			s.setDispatching(true)
			s.dispatch(ctx, ch, delivery)
			s.setDispatching(false)
		}
	}
}

// setDispatching marks a delivery in flight. Ending one after Stop closes
// the channel Stop left open.
func (s *Server) setDispatching(dispatching bool) {
	s.mu.Lock()
	s.dispatching = dispatching
	closeNow := !dispatching && s.stopping && !s.closed && s.channel != nil
	if closeNow {
		s.closed = true
	}
	ch := s.channel
	s.mu.Unlock()

	if closeNow {
		if err := ch.Close(); err != nil {
			s.logger.Error("failed to close channel", "error", err)
		}
	}
}

func (s *Server) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *Server) closeConnection() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return
	}
	if err := conn.Close(); err != nil {
		s.logger.Warn("failed to close connection", "error", err)
	}
}
