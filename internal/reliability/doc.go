// Package reliability provides the retry policy used to re-establish a
// broker connection after Server.Run reports a connection failure.
//
//	policy := reliability.NewExponentialBackoff(time.Second, 30*time.Second, 2, 0)
//	policy.Retryable = func(err error) bool { return errors.Is(err, rabbitrpc.ErrConnection) }
//
//	err := reliability.Retry(ctx, policy, func() error {
//		return server.Run(ctx)
//	}, nil)
package reliability
