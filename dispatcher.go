package cqrs

import (
	"context"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/bjaus/cqrs/logger"
)

var _ Registrar = (*Dispatcher)(nil)

// Dispatcher routes messages to their handlers through a middleware chain.
//
// Usage:
//  1. Create a dispatcher with New
//  2. Register handlers with RegisterHandlersIn or the typed Register helpers
//  3. Send commands and queries, Publish events
//
// Dispatcher is safe for concurrent use. Replacing the middleware chain with
// MutateMiddleware is not serialized against other replacements; callers that
// mutate concurrently must synchronize themselves.
type Dispatcher struct {
	registry *Registry
	chain    atomic.Pointer[Chain]
	executor Executor
	logger   logger.Logger
	hooks    hooks
}

// New creates a Dispatcher.
//
// Example:
//
//	d := cqrs.New(
//	    cqrs.WithLogger(zaplogger.Wrap(zapLog)),
//	    cqrs.WithMiddleware(cqrs.NewLoggingMiddleware(log)),
//	)
//	if err := d.RegisterHandlersIn(&OrderHandlers{}); err != nil {
//	    return err
//	}
func New(opts ...Option) *Dispatcher {
	o := newOptions(opts)

	registry := o.registry
	if registry == nil {
		registry = newRegistry(o)
	}
	executor := o.executor
	if executor == nil {
		executor = GoExecutor{}
	}

	d := &Dispatcher{
		registry: registry,
		executor: executor,
		logger:   o.logger,
		hooks:    o.hooks,
	}
	chain := NewChain(o.middlewares...)
	d.chain.Store(&chain)
	return d
}

// Registry returns the handler registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// RegisterHandlersIn discovers and registers the handlers of source.
func (d *Dispatcher) RegisterHandlersIn(source any) error {
	return d.registry.RegisterHandlersIn(source)
}

// RegisterCommandHandler implements Registrar.
func (d *Dispatcher) RegisterCommandHandler(t reflect.Type, h Invoker) error {
	return d.registry.RegisterCommandHandler(t, h)
}

// RegisterQueryHandler implements Registrar.
func (d *Dispatcher) RegisterQueryHandler(t reflect.Type, h Invoker) error {
	return d.registry.RegisterQueryHandler(t, h)
}

// RegisterEventHandler implements Registrar.
func (d *Dispatcher) RegisterEventHandler(t reflect.Type, h EventInvoker) error {
	return d.registry.RegisterEventHandler(t, h)
}

// Middleware returns the current middleware chain.
func (d *Dispatcher) Middleware() Chain { return *d.chain.Load() }

// MutateMiddleware builds a new chain from the current one with fn and
// swaps it in. If fn returns an error the current chain is kept. Dispatches
// already running keep the chain they started with.
//
// Example:
//
//	err := d.MutateMiddleware(func(b *cqrs.ChainBuilder) error {
//	    b.RemoveType(reflect.TypeFor[*cqrs.LoggingMiddleware]())
//	    return b.RemoveAt(0)
//	})
func (d *Dispatcher) MutateMiddleware(fn func(*ChainBuilder) error) error {
	if fn == nil {
		return configErr("mutator cannot be nil")
	}
	b := d.Middleware().Mutate()
	if err := fn(b); err != nil {
		return err
	}
	chain := b.Build()
	d.chain.Store(&chain)
	return nil
}

// Send dispatches a command or query and returns the handler's result. The
// command handler for the message type is used if one exists, otherwise the
// query handler. Errors from the handler and the middleware are returned
// unchanged.
func (d *Dispatcher) Send(ctx context.Context, msg any) (any, error) {
	if msg == nil {
		return nil, configErr("message cannot be nil")
	}
	t := reflect.TypeOf(msg)

	role := RoleCommand
	h, found, err := d.registry.CommandHandler(t)
	if err != nil {
		return nil, err
	}
	if !found {
		role = RoleQuery
		if h, found, err = d.registry.QueryHandler(t); err != nil {
			return nil, err
		}
	}
	if !found {
		d.hooks.noHandler(ctx, t)
		return nil, &HandlerNotFoundError{MessageType: t}
	}

	mc := NewMiddlewareContext(role, t)

	d.hooks.dispatch(ctx, role, t)
	start := time.Now()
	result, err := d.Middleware().Execute(ctx, msg, mc, Next(h))
	d.hooks.done(ctx, role, t, err, time.Since(start))

	return result, err
}

// Publish delivers an event to every handler registered for its type, in
// registration order, each through the whole middleware chain. All handlers
// share one MiddlewareContext. The first failing handler stops delivery and
// its error is returned. An event without handlers is not an error.
func (d *Dispatcher) Publish(ctx context.Context, evt any) error {
	if evt == nil {
		return configErr("event cannot be nil")
	}
	t := reflect.TypeOf(evt)

	handlers, err := d.registry.EventHandlers(t)
	if err != nil {
		return err
	}
	if len(handlers) == 0 {
		logger.Info(d.logger, "no handlers for event", logger.With("eventType", t.String()))
		d.hooks.noHandler(ctx, t)
		return nil
	}

	mc := NewMiddlewareContext(RoleEvent, t)
	chain := d.Middleware()

	d.hooks.dispatch(ctx, RoleEvent, t)
	start := time.Now()
	for _, h := range handlers {
		terminal := func(ctx context.Context, msg any) (any, error) {
			return nil, h(ctx, msg)
		}
		if _, err = chain.Execute(ctx, evt, mc, terminal); err != nil {
			break
		}
	}
	d.hooks.done(ctx, RoleEvent, t, err, time.Since(start))

	return err
}

// SendAsync runs Send on the dispatcher's executor.
func (d *Dispatcher) SendAsync(ctx context.Context, msg any) *Future[any] {
	return runAsync(d.executor, typeName(reflect.TypeOf(msg)), func() (any, error) {
		return d.Send(ctx, msg)
	})
}

// PublishAsync runs Publish on the dispatcher's executor.
func (d *Dispatcher) PublishAsync(ctx context.Context, evt any) *Future[struct{}] {
	return runAsync(d.executor, typeName(reflect.TypeOf(evt)), func() (struct{}, error) {
		return struct{}{}, d.Publish(ctx, evt)
	})
}

// Send dispatches msg through d and converts the result to R. A nil result
// becomes the zero R; a result of another type fails with a
// *ConfigurationError.
//
// Example:
//
//	id, err := cqrs.Send[string](ctx, d, CreateOrder{CustomerID: "c-1"})
func Send[R any](ctx context.Context, d *Dispatcher, msg any) (R, error) {
	var zero R
	result, err := d.Send(ctx, msg)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	r, ok := result.(R)
	if !ok {
		return zero, configErr("result of type %T is not a %s", result, reflect.TypeFor[R]())
	}
	return r, nil
}
