// Package otelcqrs instruments cqrs dispatches with OpenTelemetry traces and
// metrics.
//
// Add the middleware first so its span covers the rest of the chain:
//
//	mw, err := otelcqrs.NewMiddleware()
//	if err != nil {
//	    return err
//	}
//	d := cqrs.New(cqrs.WithMiddleware(mw, cqrs.NewLoggingMiddleware(log)))
package otelcqrs

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/bjaus/cqrs"
)

// Attribute keys recorded on spans and metrics.
const (
	RoleAttribute          attribute.Key = "cqrs.role"
	MessageTypeAttribute   attribute.Key = "cqrs.message.type"
	CorrelationIDAttribute attribute.Key = "cqrs.correlation_id"
	ErrorAttribute         attribute.Key = "error"
)

// Metric names.
const (
	DispatchCountMetric    = "cqrs.dispatch.count"
	DispatchDurationMetric = "cqrs.dispatch.duration"
)

var _ cqrs.Middleware = (*Middleware)(nil)

// Middleware starts a span around every dispatch and records its count and
// duration.
//
// Use NewMiddleware to create one.
type Middleware struct {
	tracer   trace.Tracer
	count    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMiddleware returns a Middleware using the global providers unless
// overridden with options. An error is returned if the metrics could not be
// registered.
func NewMiddleware(opts ...Option) (*Middleware, error) {
	cfg := newConfig(opts...)

	m := &Middleware{tracer: cfg.tracer()}
	if err := m.registerMetrics(cfg.meter()); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Middleware) registerMetrics(meter metric.Meter) error {
	var err error

	if m.count, err = meter.Int64Counter(
		DispatchCountMetric,
		metric.WithDescription("Count of messages dispatched."),
	); err != nil {
		return fmt.Errorf("otelcqrs: failed to register metric: %w", err)
	}

	if m.duration, err = meter.Float64Histogram(
		DispatchDurationMetric,
		metric.WithUnit("ms"),
		metric.WithDescription("Duration in milliseconds of message dispatches."),
	); err != nil {
		return fmt.Errorf("otelcqrs: failed to register metric: %w", err)
	}

	return nil
}

// Handle implements cqrs.Middleware.
func (m *Middleware) Handle(
	ctx context.Context,
	msg any,
	mc *cqrs.MiddlewareContext,
	next cqrs.Next,
) (result any, err error) {
	messageType := "<nil>"
	if t := mc.MessageType(); t != nil {
		messageType = t.String()
	}

	attributes := []attribute.KeyValue{
		RoleAttribute.String(mc.Role().String()),
		MessageTypeAttribute.String(messageType),
	}

	spanAttributes := slices.Clone(attributes)
	if id, ok := cqrs.Value[string](mc, cqrs.CorrelationIDKey); ok {
		spanAttributes = append(spanAttributes, CorrelationIDAttribute.String(id))
	}

	ctx, span := m.tracer.Start(ctx, mc.Role().String()+" "+messageType,
		trace.WithAttributes(spanAttributes...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	start := time.Now()

	defer func() {
		attributes := append(attributes, ErrorAttribute.Bool(err != nil))
		set := metric.WithAttributes(attributes...)

		m.count.Add(ctx, 1, set)
		m.duration.Record(ctx, float64(time.Since(start))/float64(time.Millisecond), set)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
	}()

	return next(ctx, msg)
}
