package rabbitmq

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	// ErrConnection is the stable kind every *ConnectionError matches via errors.Is.
	ErrConnection = errors.New("rabbitmq: connection failed")

	// Connection errors
	ErrConnectionClosed  = errors.New("rabbitmq: connection is closed")
	ErrConnectionTimeout = errors.New("rabbitmq: connection timeout")

	// Channel errors
	ErrChannelClosed = errors.New("rabbitmq: channel is closed")

	// General errors
	ErrInvalidConfiguration = errors.New("rabbitmq: invalid configuration")
)

// ConnectionError represents a failure to establish or keep the broker
// connection, its channel or its consumer. The broker client's own error
// is kept as Err.
type ConnectionError struct {
	Op        string    // Operation that failed
	Addr      string    // Broker address (sanitized)
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

// NewConnectionError wraps err for operation op against addr.
func NewConnectionError(op, addr string, err error) *ConnectionError {
	return &ConnectionError{
		Op:        op,
		Addr:      SanitizeURL(addr),
		Err:       err,
		Timestamp: time.Now(),
	}
}

func (e *ConnectionError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("rabbitmq connection error: %s %s failed: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("rabbitmq connection error: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConnection.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// SanitizeURL removes the password from an AMQP URL. Strings that do not
// parse as URLs are returned unchanged, since they carry no user info.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
