// Package middleware provides handler decorators for rabbitrpc servers.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/glimte/rabbitrpc"
)

// ErrRateLimited is returned when a request could not obtain a token
// before its context ended.
var ErrRateLimited = errors.New("middleware: rate limit exceeded")

// Logging logs every request with its duration at debug level and every
// handler error at warn level.
func Logging(logger *slog.Logger) rabbitrpc.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next rabbitrpc.Handler) rabbitrpc.Handler {
		return rabbitrpc.HandlerFunc(func(ctx context.Context, request any) (any, error) {
			start := time.Now()
			result, err := next.Handle(ctx, request)

			attrs := []any{"duration", time.Since(start)}
			if info, ok := rabbitrpc.RequestInfoFromContext(ctx); ok {
				attrs = append(attrs,
					"queue", info.Queue,
					"deliveryTag", info.DeliveryTag,
					"correlationId", info.CorrelationID,
				)
			}

			if err != nil {
				logger.Warn("rpc handler returned error", append(attrs, "error", err)...)
			} else {
				logger.Debug("rpc handler completed", attrs...)
			}
			return result, err
		})
	}
}

// RateLimit admits requests at r per second with the given burst. A
// request waits for a token; if its context ends first the handler is not
// called and ErrRateLimited is returned.
func RateLimit(r float64, burst int) rabbitrpc.Middleware {
	return RateLimitWith(rate.NewLimiter(rate.Limit(r), burst))
}

// RateLimitWith is RateLimit with a caller-owned limiter
func RateLimitWith(limiter *rate.Limiter) rabbitrpc.Middleware {
	return func(next rabbitrpc.Handler) rabbitrpc.Handler {
		return rabbitrpc.HandlerFunc(func(ctx context.Context, request any) (any, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
			return next.Handle(ctx, request)
		})
	}
}

// Timeout bounds the context passed to the handler. The handler still runs
// on the consume goroutine, so it must honour ctx for the bound to matter.
func Timeout(d time.Duration) rabbitrpc.Middleware {
	return func(next rabbitrpc.Handler) rabbitrpc.Handler {
		return rabbitrpc.HandlerFunc(func(ctx context.Context, request any) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Handle(ctx, request)
		})
	}
}
