// Package rabbitrpc implements a single-consumer RPC server on top of a
// RabbitMQ (AMQP 0-9-1) queue.
//
// A Server declares its queue as durable, asks the broker for one
// unacknowledged delivery at a time and, for every delivery, decodes the
// body, calls the Handler, encodes the result and, when the request names
// a reply-to destination, publishes the result there as a persistent
// message carrying the request's correlation id. Every delivery is
// acknowledged once processing ends, whether or not it succeeded: a
// request is attempted at most once and failures are logged, not retried.
//
//	handler := rabbitrpc.HandlerFunc(func(ctx context.Context, req any) (any, error) {
//		return req, nil
//	})
//
//	server, err := rabbitrpc.NewServer(handler, "rpc.echo",
//		rabbitrpc.WithConnectionSettings(rabbitrpc.ConnectionSettings{
//			Host:     "rabbit.internal",
//			Username: "rpc",
//			Password: os.Getenv("RPC_PASSWORD"),
//		}),
//	)
//	if err != nil {
//		return err
//	}
//
//	go func() {
//		<-shutdown
//		server.Stop()
//	}()
//
//	if err := server.Run(ctx); errors.Is(err, rabbitrpc.ErrConnection) {
//		// broker unreachable; retry or give up
//	}
//
// Only connection failures are returned from Run. Decode, handler, encode,
// publish and ack failures are contained per message and reported through
// the logger, the optional ErrorHandler and MetricsRecorder.
package rabbitrpc
