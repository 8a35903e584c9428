package cqrs

import (
	"context"
	"fmt"
	"reflect"
)

// Invoker is the type-erased form every command and query handler is
// stored as.
type Invoker func(ctx context.Context, msg any) (any, error)

// EventInvoker is the type-erased form every event handler is stored as.
type EventInvoker func(ctx context.Context, msg any) error

// CommandHandler handles one command type and returns a result.
//
// Example:
//
//	type CreateOrderHandler struct{ db *sql.DB }
//
//	func (h *CreateOrderHandler) HandleCommand(ctx context.Context, cmd CreateOrder) (string, error) {
//	    id := uuid.NewString()
//	    _, err := h.db.ExecContext(ctx, "INSERT INTO orders ...", id, cmd.CustomerID)
//	    return id, err
//	}
type CommandHandler[C Command, R any] interface {
	HandleCommand(ctx context.Context, cmd C) (R, error)
}

// QueryHandler handles one query type and returns a result.
type QueryHandler[Q Query, R any] interface {
	HandleQuery(ctx context.Context, query Q) (R, error)
}

// EventHandler reacts to one event type.
type EventHandler[E Event] interface {
	HandleEvent(ctx context.Context, event E) error
}

// CommandHandlerFunc is a function adapter for CommandHandler.
type CommandHandlerFunc[C Command, R any] func(ctx context.Context, cmd C) (R, error)

// HandleCommand implements CommandHandler.
func (f CommandHandlerFunc[C, R]) HandleCommand(ctx context.Context, cmd C) (R, error) {
	return f(ctx, cmd)
}

// QueryHandlerFunc is a function adapter for QueryHandler.
type QueryHandlerFunc[Q Query, R any] func(ctx context.Context, query Q) (R, error)

// HandleQuery implements QueryHandler.
func (f QueryHandlerFunc[Q, R]) HandleQuery(ctx context.Context, query Q) (R, error) {
	return f(ctx, query)
}

// EventHandlerFunc is a function adapter for EventHandler.
type EventHandlerFunc[E Event] func(ctx context.Context, event E) error

// HandleEvent implements EventHandler.
func (f EventHandlerFunc[E]) HandleEvent(ctx context.Context, event E) error {
	return f(ctx, event)
}

// Registrar accepts type-erased handlers. Both *Registry and *Dispatcher
// implement it.
type Registrar interface {
	RegisterCommandHandler(t reflect.Type, h Invoker) error
	RegisterQueryHandler(t reflect.Type, h Invoker) error
	RegisterEventHandler(t reflect.Type, h EventInvoker) error
}

// RegisterCommand registers h as the handler for command type C.
//
// This is a package-level function (not a method) because methods cannot
// have type parameters of their own.
//
// Example:
//
//	err := cqrs.RegisterCommand(d, &CreateOrderHandler{db: db})
func RegisterCommand[C Command, R any](r Registrar, h CommandHandler[C, R]) error {
	if h == nil {
		return configErr("handler cannot be nil")
	}
	name := handlerName(h, "HandleCommand")
	return r.RegisterCommandHandler(reflect.TypeFor[C](), func(ctx context.Context, msg any) (any, error) {
		cmd, ok := msg.(C)
		if !ok {
			return nil, mismatch(name, msg, reflect.TypeFor[C]())
		}
		return h.HandleCommand(ctx, cmd)
	})
}

// RegisterCommandFunc registers fn as the handler for command type C.
func RegisterCommandFunc[C Command, R any](r Registrar, fn func(ctx context.Context, cmd C) (R, error)) error {
	if fn == nil {
		return configErr("handler cannot be nil")
	}
	return RegisterCommand[C, R](r, CommandHandlerFunc[C, R](fn))
}

// RegisterQuery registers h as the handler for query type Q.
func RegisterQuery[Q Query, R any](r Registrar, h QueryHandler[Q, R]) error {
	if h == nil {
		return configErr("handler cannot be nil")
	}
	name := handlerName(h, "HandleQuery")
	return r.RegisterQueryHandler(reflect.TypeFor[Q](), func(ctx context.Context, msg any) (any, error) {
		q, ok := msg.(Q)
		if !ok {
			return nil, mismatch(name, msg, reflect.TypeFor[Q]())
		}
		return h.HandleQuery(ctx, q)
	})
}

// RegisterQueryFunc registers fn as the handler for query type Q.
func RegisterQueryFunc[Q Query, R any](r Registrar, fn func(ctx context.Context, query Q) (R, error)) error {
	if fn == nil {
		return configErr("handler cannot be nil")
	}
	return RegisterQuery[Q, R](r, QueryHandlerFunc[Q, R](fn))
}

// RegisterEvent appends h to the handlers of event type E.
func RegisterEvent[E Event](r Registrar, h EventHandler[E]) error {
	if h == nil {
		return configErr("handler cannot be nil")
	}
	name := handlerName(h, "HandleEvent")
	return r.RegisterEventHandler(reflect.TypeFor[E](), func(ctx context.Context, msg any) error {
		evt, ok := msg.(E)
		if !ok {
			return mismatch(name, msg, reflect.TypeFor[E]())
		}
		return h.HandleEvent(ctx, evt)
	})
}

// RegisterEventFunc appends fn to the handlers of event type E.
func RegisterEventFunc[E Event](r Registrar, fn func(ctx context.Context, event E) error) error {
	if fn == nil {
		return configErr("handler cannot be nil")
	}
	return RegisterEvent[E](r, EventHandlerFunc[E](fn))
}

func handlerName(h any, method string) string {
	return fmt.Sprintf("%T.%s", h, method)
}

func mismatch(name string, msg any, want reflect.Type) error {
	return &InvocationError{
		Handler: name,
		Err:     fmt.Errorf("message of type %T is not a %s", msg, want),
	}
}
