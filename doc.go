// Package cqrs dispatches commands, queries and events to in-process
// handlers through a middleware chain.
//
// A command changes state and has exactly one handler. A query reads state
// and has exactly one handler. An event announces a fact and has any number
// of handlers, called in registration order.
//
// # Quick Start
//
// Mark message types with their role:
//
//	type CreateOrder struct {
//	    cqrs.CommandMarker
//	    CustomerID string
//	}
//
//	type OrderCreated struct {
//	    cqrs.EventMarker
//	    OrderID string
//	}
//
// Write a handler, register it, dispatch:
//
//	type CreateOrderHandler struct{ orders *OrderStore }
//
//	func (h *CreateOrderHandler) HandleCommand(ctx context.Context, cmd CreateOrder) (string, error) {
//	    return h.orders.Create(ctx, cmd.CustomerID)
//	}
//
//	d := cqrs.New()
//	if err := d.RegisterHandlersIn(&CreateOrderHandler{orders}); err != nil {
//	    return err
//	}
//	id, err := cqrs.Send[string](ctx, d, CreateOrder{CustomerID: "c-1"})
//
// # Message Roles
//
// A message type declares its role by implementing exactly one of Command,
// Query or Event, usually by embedding CommandMarker, QueryMarker or
// EventMarker. Discovery rejects handlers for types with no role or more
// than one. Messages are routed on their exact dynamic type, so Foo and *Foo
// are different message types.
//
// # Discovery
//
// RegisterHandlersIn asks a Strategy for the handlers of a source object.
// Two strategies ship with the package:
//
//   - AnnotationStrategy (priority 100): methods named in the source's
//     Annotations table. Methods take (M) or (context.Context, M); commands
//     and queries return (R) or (R, error), events return nothing or error.
//   - InterfaceStrategy (priority 50): HandleCommand, HandleQuery and
//     HandleEvent methods, i.e. the CommandHandler, QueryHandler and
//     EventHandler interfaces.
//
// The default strategy runs both in a CompositeStrategy under a
// ConflictPolicy:
//
//   - FailFast (default): a message type found by two strategies is an
//     error, and so is any strategy failure
//   - FirstWins: the first strategy that finds anything wins
//   - LastWins: everything is kept, later command/query handlers replace
//     earlier ones
//   - MergeAll: everything is kept
//
// Handlers can also be registered directly with RegisterCommand,
// RegisterQuery and RegisterEvent, or their Func variants.
//
// # Middleware
//
// Middleware wraps every dispatch. The first middleware in a Chain is the
// outermost; each one decides whether to call next:
//
//	timing := cqrs.MiddlewareFunc(func(ctx context.Context, msg any, mc *cqrs.MiddlewareContext, next cqrs.Next) (any, error) {
//	    start := time.Now()
//	    defer func() { mc.Set("elapsed", time.Since(start)) }()
//	    return next(ctx, msg)
//	})
//
// Chains are immutable. MutateMiddleware builds a changed copy and swaps it
// in:
//
//	err := d.MutateMiddleware(func(b *cqrs.ChainBuilder) error {
//	    b.Add(timing)
//	    return nil
//	})
//
// Each Send gets a fresh MiddlewareContext; one Publish shares a single
// MiddlewareContext across all handlers of the event.
//
// # Hooks
//
// Hooks observe dispatches without taking part in them:
//
//	d := cqrs.New(
//	    cqrs.WithOnSuccess(func(ctx context.Context, role cqrs.Role, t reflect.Type, d time.Duration) {
//	        metrics.Timing("cqrs.success", d, "role:"+role.String())
//	    }),
//	    cqrs.WithOnFailure(func(ctx context.Context, role cqrs.Role, t reflect.Type, err error, d time.Duration) {
//	        metrics.Incr("cqrs.failure", "role:"+role.String())
//	    }),
//	)
//
// # Ingress
//
// Ingress feeds raw JSON to a Dispatcher. Sources recognize a wire format
// with a cheap Discriminator over a gjson View, then Parse an Envelope
// whose key is bound to a message type with Bind:
//
//	in := cqrs.NewIngress(d)
//	in.AddSource(cqrs.EnvelopeSource("envelope", "type", "payload"))
//	_ = cqrs.Bind[CreateOrder](in, "CreateOrder")
//	result, err := in.Process(ctx, body)
//
// Payloads are validated with their own Validate method, if any, and with
// go-playground/validator struct tags.
//
// Sources whose messages need another Inspector go in a group with AddGroup.
// The source that matched the previous message is tried first.
//
// By default Process fails when no source matches, parsing fails, a key is
// unbound, or a payload is invalid. Hooks such as WithOnNoSource,
// WithOnUnknownKey and WithOnValidationError decide instead: return nil to
// skip the message, return an error to fail. Sources may implement the
// matching OnXxxHook interfaces for source-specific behavior.
//
// Request-response sources set Envelope.Replier; Process then reports the
// Send result through Reply and any failure through Fail.
//
// # Errors
//
// Every error matches ErrDispatch with errors.Is, plus a sentinel for its
// kind: ErrConfiguration, ErrHandlerNotFound, ErrMultipleHandlers,
// ErrDiscovery, ErrValidation or ErrTypeResolution. Use errors.As with the
// matching *XxxError type for details. Errors returned by handlers and
// middleware are passed through unchanged.
//
// # Thread Safety
//
// Registry and Dispatcher are safe for concurrent use. Ingress is safe for
// concurrent use after configuration; do not call AddSource, AddGroup or
// Bind after calling Process.
package cqrs
