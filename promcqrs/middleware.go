// Package promcqrs exports cqrs dispatch metrics to Prometheus.
package promcqrs

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bjaus/cqrs"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var labels = []string{"role", "message_type", "outcome"}

// Config configures the metrics.
type Config struct {
	// Namespace of all metrics (default: "cqrs").
	Namespace string

	// Subsystem of all metrics (default: "dispatcher").
	Subsystem string

	// Registerer the metrics are registered with. If nil,
	// prometheus.DefaultRegisterer is used.
	Registerer prometheus.Registerer

	// DurationBuckets of the duration histogram, in seconds. If nil,
	// prometheus.DefBuckets is used.
	DurationBuckets []float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Namespace:       "cqrs",
		Subsystem:       "dispatcher",
		Registerer:      prometheus.DefaultRegisterer,
		DurationBuckets: prometheus.DefBuckets,
	}
}

var _ cqrs.Middleware = (*Middleware)(nil)

// Middleware counts dispatches and observes their duration, labelled by
// role, message type and outcome.
type Middleware struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMiddleware creates the metrics and registers them. An error is
// returned if registration fails, for example when the same names are
// already registered with config.Registerer.
//
// Example:
//
//	mw, err := promcqrs.NewMiddleware(&promcqrs.Config{Registerer: reg})
//	if err != nil {
//	    return err
//	}
//	d := cqrs.New(cqrs.WithMiddleware(mw))
func NewMiddleware(config *Config) (*Middleware, error) {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Namespace == "" {
		config.Namespace = defaults.Namespace
	}
	if config.Subsystem == "" {
		config.Subsystem = defaults.Subsystem
	}
	if config.Registerer == nil {
		config.Registerer = defaults.Registerer
	}
	if config.DurationBuckets == nil {
		config.DurationBuckets = defaults.DurationBuckets
	}

	m := &Middleware{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "messages_total",
				Help:      "Total number of messages dispatched",
			},
			labels,
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "duration_seconds",
				Help:      "Duration of message dispatches in seconds",
				Buckets:   config.DurationBuckets,
			},
			labels,
		),
	}

	for _, c := range []prometheus.Collector{m.total, m.duration} {
		if err := config.Registerer.Register(c); err != nil {
			return nil, fmt.Errorf("promcqrs: failed to register metric: %w", err)
		}
	}

	return m, nil
}

// Handle implements cqrs.Middleware.
func (m *Middleware) Handle(ctx context.Context, msg any, mc *cqrs.MiddlewareContext, next cqrs.Next) (any, error) {
	start := time.Now()
	result, err := next(ctx, msg)

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}

	messageType := "<nil>"
	if t := mc.MessageType(); t != nil {
		messageType = t.String()
	}

	lv := []string{mc.Role().String(), messageType, outcome}
	m.total.WithLabelValues(lv...).Inc()
	m.duration.WithLabelValues(lv...).Observe(time.Since(start).Seconds())

	return result, err
}
