package cqrs

import (
	"context"
	"reflect"
	"time"
)

// OnDispatchFunc is called just before a message enters the middleware
// chain.
type OnDispatchFunc func(ctx context.Context, role Role, messageType reflect.Type)

// OnSuccessFunc is called after a dispatch completes without error. For
// Publish, after every handler has run.
type OnSuccessFunc func(ctx context.Context, role Role, messageType reflect.Type, duration time.Duration)

// OnFailureFunc is called after a dispatch fails.
type OnFailureFunc func(ctx context.Context, role Role, messageType reflect.Type, err error, duration time.Duration)

// OnNoHandlerFunc is called when Send finds no handler, or Publish finds no
// handlers, for a message type. It only observes: Send still fails with
// *HandlerNotFoundError and Publish still returns nil.
type OnNoHandlerFunc func(ctx context.Context, messageType reflect.Type)

// hooks holds all configured hook functions.
type hooks struct {
	onDispatch  []OnDispatchFunc
	onSuccess   []OnSuccessFunc
	onFailure   []OnFailureFunc
	onNoHandler []OnNoHandlerFunc
}

// WithOnDispatch adds a hook called just before dispatch.
// Multiple hooks are called in order.
//
// Example:
//
//	cqrs.WithOnDispatch(func(ctx context.Context, role cqrs.Role, t reflect.Type) {
//	    log.Debug("dispatching", logger.With("type", t.String()))
//	})
func WithOnDispatch(fn OnDispatchFunc) Option {
	return func(o *options) {
		o.hooks.onDispatch = append(o.hooks.onDispatch, fn)
	}
}

// WithOnSuccess adds a hook called after a successful dispatch.
// Multiple hooks are called in order.
//
// Example:
//
//	cqrs.WithOnSuccess(func(ctx context.Context, role cqrs.Role, t reflect.Type, d time.Duration) {
//	    metrics.Timing("cqrs.success", d, "role:"+role.String())
//	})
func WithOnSuccess(fn OnSuccessFunc) Option {
	return func(o *options) {
		o.hooks.onSuccess = append(o.hooks.onSuccess, fn)
	}
}

// WithOnFailure adds a hook called after a failed dispatch.
// Multiple hooks are called in order.
func WithOnFailure(fn OnFailureFunc) Option {
	return func(o *options) {
		o.hooks.onFailure = append(o.hooks.onFailure, fn)
	}
}

// WithOnNoHandler adds a hook called when a message has no handler.
// Multiple hooks are called in order.
func WithOnNoHandler(fn OnNoHandlerFunc) Option {
	return func(o *options) {
		o.hooks.onNoHandler = append(o.hooks.onNoHandler, fn)
	}
}

func (h *hooks) dispatch(ctx context.Context, role Role, t reflect.Type) {
	for _, fn := range h.onDispatch {
		fn(ctx, role, t)
	}
}

func (h *hooks) done(ctx context.Context, role Role, t reflect.Type, err error, d time.Duration) {
	if err != nil {
		for _, fn := range h.onFailure {
			fn(ctx, role, t, err, d)
		}
		return
	}
	for _, fn := range h.onSuccess {
		fn(ctx, role, t, d)
	}
}

func (h *hooks) noHandler(ctx context.Context, t reflect.Type) {
	for _, fn := range h.onNoHandler {
		fn(ctx, t)
	}
}
