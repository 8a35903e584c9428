package cqrs

import (
	"context"

	"github.com/google/uuid"
)

// CorrelationIDKey is the MiddlewareContext attribute holding the
// correlation id of a dispatch.
const CorrelationIDKey = "correlation-id"

type correlationKey struct{}

// WithCorrelationID returns a context carrying id. CorrelationMiddleware
// reuses it instead of generating a new one.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation id carried by ctx, if any.
func CorrelationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}

// CorrelationMiddleware gives every dispatch a correlation id. The id comes
// from, in order: the MiddlewareContext attribute, the context, or a new
// random UUID. It is stored in both for the rest of the chain.
type CorrelationMiddleware struct {
	generate func() string
}

var _ Middleware = (*CorrelationMiddleware)(nil)

// NewCorrelationMiddleware returns a CorrelationMiddleware generating
// UUIDv4 ids.
func NewCorrelationMiddleware() *CorrelationMiddleware {
	return &CorrelationMiddleware{generate: uuid.NewString}
}

// Handle implements Middleware.
func (m *CorrelationMiddleware) Handle(ctx context.Context, msg any, mc *MiddlewareContext, next Next) (any, error) {
	id, ok := Value[string](mc, CorrelationIDKey)
	if !ok {
		if id, ok = CorrelationID(ctx); !ok {
			id = m.generate()
		}
		mc.Set(CorrelationIDKey, id)
	}
	return next(WithCorrelationID(ctx, id), msg)
}
