package rabbitrpc

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection defaults
const (
	DefaultHost              = "localhost"
	DefaultPort              = 5672
	DefaultVirtualHost       = "/"
	DefaultConnectionTimeout = 30 * time.Second
)

// Credentials authenticate against the broker with the PLAIN mechanism.
// The password is held privately and never printed.
type Credentials struct {
	username string
	password string
}

// NewCredentials creates PLAIN credentials
func NewCredentials(username, password string) *Credentials {
	return &Credentials{username: username, password: password}
}

// Username returns the user the credentials authenticate as
func (c *Credentials) Username() string {
	return c.username
}

// Mechanism implements amqp.Authentication
func (c *Credentials) Mechanism() string {
	return "PLAIN"
}

// Response implements amqp.Authentication
func (c *Credentials) Response() string {
	return fmt.Sprintf("\000%s\000%s", c.username, c.password)
}

func (c *Credentials) String() string {
	return fmt.Sprintf("PLAIN(%s)", c.username)
}

// ConnectionSettings describe how to reach the broker. Zero-valued fields
// are treated as not supplied.
type ConnectionSettings struct {
	Host        string
	Port        int
	VirtualHost string

	// Username and Password are consumed by Configure, which replaces them
	// with Credentials.
	Username    string
	Password    string
	Credentials *Credentials

	// Passed through to the connection unchanged
	Heartbeat         time.Duration
	ConnectionTimeout time.Duration
	Locale            string
	ConnectionName    string
	Properties        map[string]any
}

// Configure overlays supplied on the defaults (localhost:5672, vhost "/")
// and derives Credentials from Username and Password, clearing both. A
// lone Username or Password is rejected with ErrPartialCredentials.
func Configure(supplied ConnectionSettings) (ConnectionSettings, error) {
	effective := supplied

	if effective.Host == "" {
		effective.Host = DefaultHost
	}
	if effective.Port == 0 {
		effective.Port = DefaultPort
	}
	if effective.VirtualHost == "" {
		effective.VirtualHost = DefaultVirtualHost
	}
	if effective.Port < 0 || effective.Port > 65535 {
		return ConnectionSettings{}, fmt.Errorf("%w: port %d out of range", ErrInvalidConfiguration, effective.Port)
	}

	if supplied.Properties != nil {
		effective.Properties = make(map[string]any, len(supplied.Properties))
		for k, v := range supplied.Properties {
			effective.Properties[k] = v
		}
	}

	switch {
	case supplied.Username != "" && supplied.Password != "":
		effective.Credentials = NewCredentials(supplied.Username, supplied.Password)
		effective.Username = ""
		effective.Password = ""
	case supplied.Username != "" || supplied.Password != "":
		return ConnectionSettings{}, ErrPartialCredentials
	}

	return effective, nil
}

// URI renders the broker address without user info
func (s ConnectionSettings) URI() string {
	return fmt.Sprintf("amqp://%s/%s",
		net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
		url.PathEscape(s.VirtualHost))
}

// DialConfig renders the settings as amqp091 connection parameters. With
// no Credentials the broker client falls back to guest/guest.
func (s ConnectionSettings) DialConfig() amqp.Config {
	timeout := s.ConnectionTimeout
	if timeout <= 0 {
		timeout = DefaultConnectionTimeout
	}

	config := amqp.Config{
		Vhost:     s.VirtualHost,
		Heartbeat: s.Heartbeat,
		Locale:    s.Locale,
		Dial:      amqp.DefaultDial(timeout),
	}

	if s.Credentials != nil {
		config.SASL = []amqp.Authentication{s.Credentials}
	}

	if len(s.Properties) > 0 || s.ConnectionName != "" {
		config.Properties = amqp.Table{}
		for k, v := range s.Properties {
			config.Properties[k] = v
		}
		if s.ConnectionName != "" {
			config.Properties["connection_name"] = s.ConnectionName
		}
	}

	return config
}

// String implements fmt.Stringer without exposing secrets
func (s ConnectionSettings) String() string {
	if s.Credentials != nil {
		return fmt.Sprintf("%s as %s", s.URI(), s.Credentials.Username())
	}
	return s.URI()
}

// LogValue implements slog.LogValuer without exposing secrets
func (s ConnectionSettings) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.String("vhost", s.VirtualHost),
	}
	if s.Credentials != nil {
		attrs = append(attrs, slog.String("user", s.Credentials.Username()))
	}
	return slog.GroupValue(attrs...)
}
