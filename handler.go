package rabbitrpc

import (
	"context"
)

// Handler processes one decoded request and returns the value to reply with
type Handler interface {
	Handle(ctx context.Context, request any) (any, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, request any) (any, error)

// Handle implements Handler
func (f HandlerFunc) Handle(ctx context.Context, request any) (any, error) {
	return f(ctx, request)
}

// Middleware decorates a Handler
type Middleware func(Handler) Handler

// Chain wraps h so that the first middleware is the outermost
func Chain(h Handler, middleware ...Middleware) Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// RequestInfo is the broker metadata of the request being handled
type RequestInfo struct {
	Queue         string
	DeliveryTag   uint64
	CorrelationID string
	ReplyTo       string
	ContentType   string
}

type requestInfoKey struct{}

// ContextWithRequestInfo returns a context carrying info
func ContextWithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext returns the metadata of the request a handler is serving
func RequestInfoFromContext(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}
