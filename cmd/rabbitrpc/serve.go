package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/glimte/rabbitrpc"
	"github.com/glimte/rabbitrpc/health"
	"github.com/glimte/rabbitrpc/internal/admin"
	"github.com/glimte/rabbitrpc/internal/config"
	"github.com/glimte/rabbitrpc/internal/logging"
	"github.com/glimte/rabbitrpc/internal/reliability"
	"github.com/glimte/rabbitrpc/metrics"
	"github.com/glimte/rabbitrpc/middleware"
	"github.com/glimte/rabbitrpc/serialization"
)

type serveFlags struct {
	configPath string
	queue      string
	handler    string
}

func newServeCommand() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume and answer RPC requests until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			logger, closer, err := buildLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger, nil)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVarP(&flags.queue, "queue", "q", "", "Queue to consume (overrides server.queue)")
	cmd.Flags().StringVar(&flags.handler, "handler", "", "Built-in handler: echo or arith (overrides server.handler)")

	return cmd
}

// loadConfig applies flag overrides on top of file and environment
func loadConfig(flags serveFlags) (config.Config, error) {
	return config.Load(flags.configPath, func(c *config.Config) {
		if flags.queue != "" {
			c.Server.Queue = flags.queue
		}
		if flags.handler != "" {
			c.Server.Handler = flags.handler
		}
	})
}

func buildLogger(cfg config.Log) (*slog.Logger, io.Closer, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, err
	}
	logger, closer := logging.New(logging.Options{
		Level:     level,
		Format:    cfg.Format,
		File:      cfg.File,
		Component: "rabbitrpc",
	})
	return logger, closer, nil
}

// serve runs the RPC server, reconnecting after connection failures,
// alongside the admin listener until ctx ends
func serve(ctx context.Context, cfg config.Config, logger *slog.Logger, dialer rabbitrpc.Dialer) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	server, err := newServer(cfg, logger, reg, dialer)
	if err != nil {
		return err
	}
	state := &connectionState{}

	if cfg.Admin.Addr != "" {
		checks := health.NewRegistry(
			health.NewServerChecker(server),
			health.NewComponentChecker("broker_connection", state.check(server)),
			health.NewGoroutineChecker(500, 1000),
		)
		adminServer := admin.NewServer(cfg.Admin.Addr, admin.NewRouter(checks, reg, logger), logger)

		adminCtx, cancelAdmin := context.WithCancel(ctx)
		adminDone := make(chan struct{})
		defer func() {
			cancelAdmin()
			<-adminDone
		}()
		go func() {
			defer close(adminDone)
			if err := adminServer.Run(adminCtx); err != nil {
				logger.Error("admin server failed", "error", err)
			}
		}()
	}

	policy := reliability.NewExponentialBackoff(
		cfg.Reconnect.Initial,
		cfg.Reconnect.Max,
		cfg.Reconnect.Multiplier,
		cfg.Reconnect.MaxAttempts,
	)
	policy.Retryable = func(err error) bool {
		return errors.Is(err, rabbitrpc.ErrConnection)
	}

	err = reliability.Retry(ctx, policy, func() error {
		err := server.Run(ctx)
		// The stream only closes under a consumer that was registered, so
		// the connection had come up; back off from the start again.
		if errors.Is(err, rabbitrpc.ErrChannelClosed) {
			return reliability.Reset(err)
		}
		return err
	}, func(err error, attempt int, delay time.Duration) {
		state.failed(err, attempt)
		logger.Warn("rpc server disconnected, reconnecting",
			"error", err,
			"attempt", attempt+1,
			"delay", delay,
		)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// connectionState remembers the last connection failure for health checks
type connectionState struct {
	mu      sync.Mutex
	lastErr error
	attempt int
}

func (s *connectionState) failed(err error, attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	s.attempt = attempt
}

// check is healthy while server consumes and degraded while it connects
// or waits to reconnect
func (s *connectionState) check(server health.Server) func(context.Context) (health.Status, string, error) {
	return func(context.Context) (health.Status, string, error) {
		if server.IsRunning() {
			return health.StatusHealthy, "connected", nil
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.lastErr == nil {
			return health.StatusDegraded, "connecting", nil
		}
		return health.StatusDegraded, fmt.Sprintf("reconnecting, attempt %d", s.attempt+1), s.lastErr
	}
}

func newServer(cfg config.Config, logger *slog.Logger, reg prometheus.Registerer, dialer rabbitrpc.Dialer) (*rabbitrpc.Server, error) {
	handler, err := lookupHandler(cfg.Server.Handler)
	if err != nil {
		return nil, err
	}

	codec, err := serialization.ByName(cfg.Server.Codec)
	if err != nil {
		return nil, err
	}

	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	mw := []rabbitrpc.Middleware{middleware.Logging(logger)}
	if cfg.Server.RateLimit > 0 {
		mw = append(mw, middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	}
	if cfg.Server.HandlerTimeout > 0 {
		mw = append(mw, middleware.Timeout(cfg.Server.HandlerTimeout))
	}

	opts := []rabbitrpc.Option{
		rabbitrpc.WithConnectionSettings(cfg.Broker.ConnectionSettings()),
		rabbitrpc.WithExchange(cfg.Server.Exchange),
		rabbitrpc.WithCodec(codec),
		rabbitrpc.WithConsumerTagPrefix(cfg.Server.ConsumerTagPrefix),
		rabbitrpc.WithLogger(logger),
		rabbitrpc.WithMetrics(collector),
		rabbitrpc.WithMiddleware(mw...),
	}
	if dialer != nil {
		opts = append(opts, rabbitrpc.WithDialer(dialer))
	}

	return rabbitrpc.NewServer(handler, cfg.Server.Queue, opts...)
}
