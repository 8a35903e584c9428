package cqrs

import (
	"context"
	"time"

	"github.com/bjaus/cqrs/logger"
)

// LoggingMiddleware logs the start and outcome of every dispatch.
type LoggingMiddleware struct {
	logger logger.Logger
}

var _ Middleware = (*LoggingMiddleware)(nil)

// NewLoggingMiddleware returns a LoggingMiddleware writing to l.
func NewLoggingMiddleware(l logger.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: l}
}

// Handle implements Middleware.
func (m *LoggingMiddleware) Handle(ctx context.Context, msg any, mc *MiddlewareContext, next Next) (any, error) {
	fields := []logger.Field{
		logger.With("role", mc.Role().String()),
		logger.With("messageType", typeName(mc.MessageType())),
	}
	if id, ok := Value[string](mc, CorrelationIDKey); ok {
		fields = append(fields, logger.With("correlationId", id))
	}

	logger.Debug(m.logger, "dispatching message", fields...)

	start := time.Now()
	result, err := next(ctx, msg)
	fields = append(fields, logger.With("duration", time.Since(start)))

	if err != nil {
		logger.Error(m.logger, "message dispatch failed", append(fields, logger.With("error", err))...)
		return result, err
	}
	logger.Info(m.logger, "message dispatched", fields...)
	return result, nil
}
