package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/glimte/rabbitrpc"
	"github.com/glimte/rabbitrpc/health"
	"github.com/glimte/rabbitrpc/internal/config"
	"github.com/glimte/rabbitrpc/internal/rabbitmq/rabbitmqtest"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Server.Queue = "rpc.echo"
	cfg.Admin.Addr = ""
	cfg.Reconnect = config.Reconnect{
		Initial:     time.Millisecond,
		Max:         2 * time.Millisecond,
		Multiplier:  2,
		MaxAttempts: 2,
	}
	return cfg
}

func TestServe(t *testing.T) {
	t.Run("reconnects then gives up with a connection error", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))
		dialer := &rabbitmqtest.Dialer{}
		dialer.On("Dial", mock.Anything, "amqp://localhost:5672/%2F", mock.Anything).
			Return(nil, errors.New("connection refused"))

		err := serve(context.Background(), testConfig(), logger, dialer)

		assert.ErrorIs(t, err, rabbitrpc.ErrConnection)
		dialer.AssertNumberOfCalls(t, "Dial", 3)
		assert.Equal(t, 2, strings.Count(logs.String(), "reconnecting"))
	})

	t.Run("a lost connection starts the backoff again", func(t *testing.T) {
		cfg := testConfig()
		cfg.Reconnect.MaxAttempts = 1

		ch := &rabbitmqtest.Channel{}
		ch.On("QueueDeclare", "rpc.echo", true, false, false, false, amqp.Table(nil)).Return(nil)
		ch.On("Qos", 1, 0, false).Return(nil)
		ch.On("Consume", "rpc.echo", mock.Anything, false, false, false, false, amqp.Table(nil)).
			Return(closedDeliveries(), nil)

		conn := &rabbitmqtest.Connection{}
		conn.On("Channel").Return(ch, nil)
		conn.On("IsClosed").Return(true)

		dialer := &rabbitmqtest.Dialer{}
		dialer.On("Dial", mock.Anything, mock.Anything, mock.Anything).Return(conn, nil).Twice()
		dialer.On("Dial", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("connection refused"))

		err := serve(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), dialer)

		assert.ErrorIs(t, err, rabbitrpc.ErrConnection)
		assert.NotErrorIs(t, err, rabbitrpc.ErrChannelClosed)
		// two lost connections each restart the count; only the refused
		// dial uses up the single retry
		dialer.AssertNumberOfCalls(t, "Dial", 3)
	})

	t.Run("interrupt during backoff is a clean exit", func(t *testing.T) {
		cfg := testConfig()
		cfg.Reconnect.Initial = time.Hour
		cfg.Reconnect.Max = time.Hour

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dialer := &rabbitmqtest.Dialer{}
		dialer.On("Dial", mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return(nil, errors.New("connection refused")).Once()

		err := serve(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), dialer)
		assert.NoError(t, err)
	})

	t.Run("configuration errors are not retried", func(t *testing.T) {
		cfg := testConfig()
		cfg.Server.Handler = "nope"

		err := serve(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), &rabbitmqtest.Dialer{})
		assert.ErrorIs(t, err, errUnknownHandler)
	})
}

func closedDeliveries() <-chan amqp.Delivery {
	send, recv := rabbitmqtest.Deliveries(0)
	close(send)
	return recv
}

type fakeServer struct {
	running bool
}

func (f *fakeServer) Queue() string   { return "rpc.echo" }
func (f *fakeServer) IsRunning() bool { return f.running }

func TestConnectionState(t *testing.T) {
	ctx := context.Background()

	t.Run("connecting before the first failure", func(t *testing.T) {
		state := &connectionState{}
		status, message, err := state.check(&fakeServer{})(ctx)

		assert.Equal(t, health.StatusDegraded, status)
		assert.Equal(t, "connecting", message)
		assert.NoError(t, err)
	})

	t.Run("reports the last failure while reconnecting", func(t *testing.T) {
		state := &connectionState{}
		refused := errors.New("connection refused")
		state.failed(errors.New("timeout"), 0)
		state.failed(refused, 2)

		status, message, err := state.check(&fakeServer{})(ctx)

		assert.Equal(t, health.StatusDegraded, status)
		assert.Equal(t, "reconnecting, attempt 3", message)
		assert.Equal(t, refused, err)
	})

	t.Run("healthy while consuming", func(t *testing.T) {
		state := &connectionState{}
		state.failed(errors.New("connection refused"), 0)

		status, message, err := state.check(&fakeServer{running: true})(ctx)

		assert.Equal(t, health.StatusHealthy, status)
		assert.Equal(t, "connected", message)
		assert.NoError(t, err)
	})

	t.Run("registered as a named check", func(t *testing.T) {
		state := &connectionState{}
		checks := health.NewRegistry(health.NewComponentChecker("broker_connection", state.check(&fakeServer{running: true})))

		report := checks.CheckAll(ctx)

		assert.True(t, report.Healthy())
		assert.Contains(t, checks.Names(), "broker_connection")
	})
}

func TestNewServer(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Exchange = "replies"
	cfg.Server.ConsumerTagPrefix = "billing"
	cfg.Server.RateLimit = 10
	cfg.Broker.Username = "rpc"
	cfg.Broker.Password = "secret"

	server, err := newServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry(), nil)
	require.NoError(t, err)

	assert.Equal(t, "rpc.echo", server.Queue())
	assert.Equal(t, "replies", server.Exchange())
	assert.True(t, strings.HasPrefix(server.ConsumerTag(), "billing-"))
	require.NotNil(t, server.ConnectionSettings().Credentials)
	assert.Equal(t, "rpc", server.ConnectionSettings().Credentials.Username())
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "rabbitrpc dev")
}
