package cqrs

import (
	"context"
	"reflect"
	"slices"
)

// Next continues dispatch with the rest of the chain and, at its end, the
// handler.
type Next func(ctx context.Context, msg any) (any, error)

// Middleware intercepts dispatch. It may call next (any number of times),
// change the message or result, return early without calling next, or
// handle errors from next.
type Middleware interface {
	Handle(ctx context.Context, msg any, mc *MiddlewareContext, next Next) (any, error)
}

// MiddlewareFunc is a function adapter for Middleware.
//
// MiddlewareFunc values are not comparable, so ChainBuilder.Remove cannot
// find them; use RemoveAt or RemoveType instead.
type MiddlewareFunc func(ctx context.Context, msg any, mc *MiddlewareContext, next Next) (any, error)

// Handle implements Middleware.
func (f MiddlewareFunc) Handle(ctx context.Context, msg any, mc *MiddlewareContext, next Next) (any, error) {
	return f(ctx, msg, mc, next)
}

// Chain is an immutable, ordered list of middleware. The zero value is the
// empty chain.
type Chain struct {
	middlewares []Middleware
}

// EmptyChain returns a chain without middleware.
func EmptyChain() Chain { return Chain{} }

// NewChain returns a chain running mws in order, first outermost. Nil
// entries are ignored.
func NewChain(mws ...Middleware) Chain {
	return NewChainBuilder().AddAll(mws...).Build()
}

// Len returns the number of middleware in the chain.
func (c Chain) Len() int { return len(c.middlewares) }

// IsEmpty reports whether the chain has no middleware.
func (c Chain) IsEmpty() bool { return len(c.middlewares) == 0 }

// Middlewares returns a copy of the chain's middleware in order.
func (c Chain) Middlewares() []Middleware { return slices.Clone(c.middlewares) }

// Execute runs msg through the chain and then terminal. The first
// middleware is the outermost: it runs first on the way in and last on the
// way out. An empty chain calls terminal directly.
func (c Chain) Execute(ctx context.Context, msg any, mc *MiddlewareContext, terminal Next) (any, error) {
	if len(c.middlewares) == 0 {
		return terminal(ctx, msg)
	}

	next := terminal
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		mw, inner := c.middlewares[i], next
		next = func(ctx context.Context, msg any) (any, error) {
			return mw.Handle(ctx, msg, mc, inner)
		}
	}
	return next(ctx, msg)
}

// Mutate returns a builder seeded with a copy of the chain's middleware.
// Changes made through it never affect c.
func (c Chain) Mutate() *ChainBuilder {
	return &ChainBuilder{middlewares: slices.Clone(c.middlewares)}
}

// ChainBuilder assembles a Chain.
//
// Example:
//
//	chain := cqrs.NewChainBuilder().
//	    Add(cqrs.NewLoggingMiddleware(log)).
//	    Add(cqrs.NewCorrelationMiddleware()).
//	    Build()
type ChainBuilder struct {
	middlewares []Middleware
}

// NewChainBuilder returns an empty builder.
func NewChainBuilder() *ChainBuilder { return &ChainBuilder{} }

// Add appends mw. A nil mw is ignored.
func (b *ChainBuilder) Add(mw Middleware) *ChainBuilder {
	if mw != nil {
		b.middlewares = append(b.middlewares, mw)
	}
	return b
}

// AddAll appends each of mws in order.
func (b *ChainBuilder) AddAll(mws ...Middleware) *ChainBuilder {
	for _, mw := range mws {
		b.Add(mw)
	}
	return b
}

// Remove removes the first middleware equal to mw. Values whose dynamic
// type is not comparable never match.
func (b *ChainBuilder) Remove(mw Middleware) *ChainBuilder {
	if mw == nil || !reflect.TypeOf(mw).Comparable() {
		return b
	}
	for i, m := range b.middlewares {
		if reflect.TypeOf(m) == reflect.TypeOf(mw) && m == mw {
			b.middlewares = slices.Delete(b.middlewares, i, i+1)
			break
		}
	}
	return b
}

// RemoveType removes every middleware whose dynamic type is exactly t.
//
// Example:
//
//	b.RemoveType(reflect.TypeFor[*cqrs.LoggingMiddleware]())
func (b *ChainBuilder) RemoveType(t reflect.Type) *ChainBuilder {
	b.middlewares = slices.DeleteFunc(b.middlewares, func(m Middleware) bool {
		return reflect.TypeOf(m) == t
	})
	return b
}

// RemoveAt removes the middleware at index i.
func (b *ChainBuilder) RemoveAt(i int) error {
	if i < 0 || i >= len(b.middlewares) {
		return configErr("index out of bounds: %d", i)
	}
	b.middlewares = slices.Delete(b.middlewares, i, i+1)
	return nil
}

// Clear removes all middleware.
func (b *ChainBuilder) Clear() *ChainBuilder {
	b.middlewares = nil
	return b
}

// Len returns the number of middleware added so far.
func (b *ChainBuilder) Len() int { return len(b.middlewares) }

// Build returns a Chain of the current middleware. The builder can keep
// being used; later changes do not affect the returned chain.
func (b *ChainBuilder) Build() Chain {
	if len(b.middlewares) == 0 {
		return Chain{}
	}
	return Chain{middlewares: slices.Clone(b.middlewares)}
}
