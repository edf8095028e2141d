package rabbitrpc

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		settings, err := Configure(ConnectionSettings{})
		require.NoError(t, err)

		assert.Equal(t, ConnectionSettings{
			Host:        "localhost",
			Port:        5672,
			VirtualHost: "/",
		}, settings)
	})

	t.Run("supplied values override defaults", func(t *testing.T) {
		supplied := ConnectionSettings{
			Host:        "hostname",
			Port:        1234,
			VirtualHost: "b/b",
		}

		settings, err := Configure(supplied)
		require.NoError(t, err)

		assert.Equal(t, supplied, settings)
		assert.Nil(t, settings.Credentials)
	})

	t.Run("partial override keeps remaining defaults", func(t *testing.T) {
		settings, err := Configure(ConnectionSettings{Port: 5673})
		require.NoError(t, err)

		assert.Equal(t, "localhost", settings.Host)
		assert.Equal(t, 5673, settings.Port)
		assert.Equal(t, "/", settings.VirtualHost)
	})

	t.Run("pass-through parameters are kept", func(t *testing.T) {
		supplied := ConnectionSettings{
			Heartbeat:         15 * time.Second,
			ConnectionTimeout: 2 * time.Second,
			Locale:            "en_US",
			ConnectionName:    "billing-rpc",
			Properties:        map[string]any{"product": "billing"},
		}

		settings, err := Configure(supplied)
		require.NoError(t, err)

		assert.Equal(t, 15*time.Second, settings.Heartbeat)
		assert.Equal(t, 2*time.Second, settings.ConnectionTimeout)
		assert.Equal(t, "en_US", settings.Locale)
		assert.Equal(t, "billing-rpc", settings.ConnectionName)
		assert.Equal(t, map[string]any{"product": "billing"}, settings.Properties)

		supplied.Properties["product"] = "changed"
		assert.Equal(t, "billing", settings.Properties["product"])
	})

	t.Run("derives credentials and strips username and password", func(t *testing.T) {
		settings, err := Configure(ConnectionSettings{
			Username: "bob",
			Password: "barker",
		})
		require.NoError(t, err)

		require.NotNil(t, settings.Credentials)
		assert.Equal(t, "bob", settings.Credentials.Username())
		assert.Equal(t, "PLAIN", settings.Credentials.Mechanism())
		assert.Equal(t, "\000bob\000barker", settings.Credentials.Response())
		assert.Empty(t, settings.Username)
		assert.Empty(t, settings.Password)
	})

	t.Run("keeps credentials supplied directly", func(t *testing.T) {
		creds := NewCredentials("bob", "barker")

		settings, err := Configure(ConnectionSettings{Credentials: creds})
		require.NoError(t, err)
		assert.Same(t, creds, settings.Credentials)
	})

	t.Run("rejects a lone username", func(t *testing.T) {
		_, err := Configure(ConnectionSettings{Username: "bob"})
		assert.ErrorIs(t, err, ErrPartialCredentials)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("rejects a lone password", func(t *testing.T) {
		_, err := Configure(ConnectionSettings{Password: "barker"})
		assert.ErrorIs(t, err, ErrPartialCredentials)
	})

	t.Run("rejects out of range port", func(t *testing.T) {
		_, err := Configure(ConnectionSettings{Port: 70000})
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})
}

func TestConnectionSettings(t *testing.T) {
	t.Run("URI escapes the virtual host", func(t *testing.T) {
		settings, err := Configure(ConnectionSettings{Host: "hostname", Port: 1234, VirtualHost: "b/b"})
		require.NoError(t, err)
		assert.Equal(t, "amqp://hostname:1234/b%2Fb", settings.URI())

		settings, err = Configure(ConnectionSettings{})
		require.NoError(t, err)
		assert.Equal(t, "amqp://localhost:5672/%2F", settings.URI())
	})

	t.Run("DialConfig carries credentials and parameters", func(t *testing.T) {
		settings, err := Configure(ConnectionSettings{
			VirtualHost:    "b/b",
			Username:       "bob",
			Password:       "barker",
			Heartbeat:      10 * time.Second,
			Locale:         "en_US",
			ConnectionName: "billing-rpc",
			Properties:     map[string]any{"product": "billing"},
		})
		require.NoError(t, err)

		config := settings.DialConfig()

		assert.Equal(t, "b/b", config.Vhost)
		assert.Equal(t, 10*time.Second, config.Heartbeat)
		assert.Equal(t, "en_US", config.Locale)
		assert.NotNil(t, config.Dial)
		require.Len(t, config.SASL, 1)
		assert.Same(t, settings.Credentials, config.SASL[0])
		assert.Equal(t, amqp.Table{"product": "billing", "connection_name": "billing-rpc"}, config.Properties)
	})

	t.Run("DialConfig without credentials leaves SASL to the client default", func(t *testing.T) {
		settings, err := Configure(ConnectionSettings{})
		require.NoError(t, err)

		config := settings.DialConfig()
		assert.Nil(t, config.SASL)
		assert.Nil(t, config.Properties)
	})

	t.Run("printing never reveals the password", func(t *testing.T) {
		settings, err := Configure(ConnectionSettings{Username: "bob", Password: "barker"})
		require.NoError(t, err)

		assert.NotContains(t, settings.String(), "barker")
		assert.NotContains(t, fmt.Sprintf("%v", settings), "barker")
		assert.NotContains(t, fmt.Sprintf("%v", settings.Credentials), "barker")

		var buf bytes.Buffer
		slog.New(slog.NewTextHandler(&buf, nil)).Info("connecting", "broker", settings)
		assert.NotContains(t, buf.String(), "barker")
		assert.Contains(t, buf.String(), "broker.user=bob")
	})
}
