package rabbitrpc

import (
	"log/slog"
	"time"

	"github.com/glimte/rabbitrpc/internal/rabbitmq"
	"github.com/glimte/rabbitrpc/serialization"
)

// Broker surface the server drives. Exposed so tests and alternative
// transports can supply their own Dialer.
type (
	Dialer     = rabbitmq.Dialer
	Connection = rabbitmq.Connection
	Channel    = rabbitmq.Channel
)

// MetricsRecorder receives per-message observations
type MetricsRecorder interface {
	MessageProcessed(outcome string, duration time.Duration)
	StageFailed(stage string)
	ReplyPublished()
	ConsumerRunning(running bool)
}

type noopMetrics struct{}

func (noopMetrics) MessageProcessed(string, time.Duration) {}
func (noopMetrics) StageFailed(string)                     {}
func (noopMetrics) ReplyPublished()                        {}
func (noopMetrics) ConsumerRunning(bool)                   {}

// serverConfig collects Option values before the server is built
type serverConfig struct {
	exchange     string
	settings     ConnectionSettings
	logger       *slog.Logger
	codec        serialization.Codec
	codecs       *serialization.Registry
	dialer       Dialer
	tagPrefix    string
	errorHandler ErrorHandler
	metrics      MetricsRecorder
	middleware   []Middleware
}

// Option configures the server
type Option func(*serverConfig)

// WithExchange sets the exchange replies are published to. The default is
// the broker's unnamed default exchange.
func WithExchange(exchange string) Option {
	return func(c *serverConfig) {
		c.exchange = exchange
	}
}

// WithConnectionSettings sets the broker connection settings
func WithConnectionSettings(settings ConnectionSettings) Option {
	return func(c *serverConfig) {
		c.settings = settings
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *serverConfig) {
		c.logger = logger
	}
}

// WithCodec sets the codec used for requests without a known content type
// and for their replies
func WithCodec(codec serialization.Codec) Option {
	return func(c *serverConfig) {
		c.codec = codec
	}
}

// WithCodecRegistry sets the codecs selectable by a request's content type
func WithCodecRegistry(registry *serialization.Registry) Option {
	return func(c *serverConfig) {
		c.codecs = registry
	}
}

// WithDialer replaces the amqp091 dialer
func WithDialer(dialer Dialer) Option {
	return func(c *serverConfig) {
		c.dialer = dialer
	}
}

// WithConsumerTagPrefix sets the prefix of the generated consumer tag
func WithConsumerTagPrefix(prefix string) Option {
	return func(c *serverConfig) {
		c.tagPrefix = prefix
	}
}

// WithErrorHandler sets the hook notified of per-message failures
func WithErrorHandler(handler ErrorHandler) Option {
	return func(c *serverConfig) {
		c.errorHandler = handler
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(metrics MetricsRecorder) Option {
	return func(c *serverConfig) {
		c.metrics = metrics
	}
}

// WithMiddleware wraps the handler; the first middleware is the outermost
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *serverConfig) {
		c.middleware = append(c.middleware, middleware...)
	}
}
