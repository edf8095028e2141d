package rabbitrpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/glimte/rabbitrpc/internal/rabbitmq"
)

var (
	// ErrConnection matches every error returned by Server.Run when the
	// broker connection could not be established or was lost.
	ErrConnection = rabbitmq.ErrConnection

	// ErrChannelClosed is the cause when the broker ends the delivery stream
	ErrChannelClosed = rabbitmq.ErrChannelClosed

	// Configuration errors
	ErrInvalidConfiguration = errors.New("rabbitrpc: invalid configuration")
	ErrPartialCredentials   = fmt.Errorf("%w: username and password must be supplied together", ErrInvalidConfiguration)
	ErrNilHandler           = fmt.Errorf("%w: handler cannot be nil", ErrInvalidConfiguration)
	ErrEmptyQueue           = fmt.Errorf("%w: queue name cannot be empty", ErrInvalidConfiguration)

	// Lifecycle errors
	ErrNotRunning     = errors.New("rabbitrpc: server not running")
	ErrAlreadyRunning = errors.New("rabbitrpc: server already running")

	// ErrHandlerPanic wraps a panic raised by the application handler
	ErrHandlerPanic = errors.New("rabbitrpc: handler panicked")
)

// ConnectionError is the single error kind surfaced by Server.Run. The
// broker client's own error is available through errors.Unwrap.
type ConnectionError = rabbitmq.ConnectionError

// Stage names the step of message processing that failed
type Stage string

const (
	StageDecode  Stage = "decode"
	StageHandle  Stage = "handle"
	StageEncode  Stage = "encode"
	StagePublish Stage = "publish"
	StageAck     Stage = "ack"
)

// DispatchError describes a failure while processing one delivery. It is
// logged and reported to the ErrorHandler, never returned from Run.
type DispatchError struct {
	Stage         Stage
	Queue         string
	DeliveryTag   uint64
	CorrelationID string
	Err           error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("rabbitrpc: %s failed for delivery %d on queue %s: %v", e.Stage, e.DeliveryTag, e.Queue, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// ErrorHandler is notified of every per-message failure
type ErrorHandler interface {
	HandleError(ctx context.Context, err *DispatchError)
}

// ErrorHandlerFunc adapts a function to ErrorHandler
type ErrorHandlerFunc func(ctx context.Context, err *DispatchError)

// HandleError implements ErrorHandler
func (f ErrorHandlerFunc) HandleError(ctx context.Context, err *DispatchError) {
	f(ctx, err)
}
