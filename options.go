package cqrs

import (
	"github.com/bjaus/cqrs/logger"
)

// Option configures a Dispatcher or a Registry.
type Option func(*options)

type options struct {
	registry    *Registry
	strategy    Strategy
	policy      ConflictPolicy
	detector    Detector
	logger      logger.Logger
	middlewares []Middleware
	executor    Executor
	hooks       hooks
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithRegistry makes the dispatcher use r instead of creating its own.
// Discovery options are then ignored in favor of r's strategy.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithStrategy sets the strategy used to discover handlers in
// RegisterHandlersIn. It takes precedence over WithConflictPolicy and
// WithDetector.
func WithStrategy(s Strategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// WithConflictPolicy sets the conflict policy of the default strategy.
func WithConflictPolicy(p ConflictPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithDetector sets the detector of the default annotation strategy.
func WithDetector(d Detector) Option {
	return func(o *options) {
		o.detector = d
	}
}

// WithLogger sets the logger. Nothing is logged by default.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMiddleware appends mws to the initial middleware chain.
//
// Example:
//
//	d := cqrs.New(
//	    cqrs.WithMiddleware(cqrs.NewLoggingMiddleware(log), cqrs.NewCorrelationMiddleware()),
//	)
func WithMiddleware(mws ...Middleware) Option {
	return func(o *options) {
		o.middlewares = append(o.middlewares, mws...)
	}
}

// WithExecutor sets the executor used by SendAsync and PublishAsync.
// The default starts a goroutine per call.
func WithExecutor(e Executor) Option {
	return func(o *options) {
		o.executor = e
	}
}
