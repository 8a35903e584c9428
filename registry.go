package cqrs

import (
	"reflect"
	"slices"
	"sync"

	"github.com/bjaus/cqrs/logger"
)

var _ Registrar = (*Registry)(nil)

// Registry stores handlers by message type. Each command and query type has
// at most one handler; event types have an ordered list of handlers.
//
// Registry is safe for concurrent use. Entries are never removed.
type Registry struct {
	commands sync.Map // reflect.Type -> Invoker
	queries  sync.Map // reflect.Type -> Invoker
	events   sync.Map // reflect.Type -> *eventHandlers

	strategy Strategy
	logger   logger.Logger
}

type eventHandlers struct {
	mu       sync.RWMutex
	handlers []EventInvoker
}

// NewRegistry creates an empty Registry. Only WithStrategy, WithConflictPolicy,
// WithDetector and WithLogger apply; other options are ignored.
//
// Without WithStrategy, RegisterHandlersIn uses DefaultStrategy, which runs
// the annotation and interface strategies under the configured conflict
// policy (FailFast unless set).
func NewRegistry(opts ...Option) *Registry {
	o := newOptions(opts)
	return newRegistry(o)
}

func newRegistry(o *options) *Registry {
	strategy := o.strategy
	if strategy == nil {
		strategy = DefaultStrategy(o.policy, o.detector, o.logger)
	}
	return &Registry{strategy: strategy, logger: o.logger}
}

// Strategy returns the discovery strategy used by RegisterHandlersIn.
func (r *Registry) Strategy() Strategy { return r.strategy }

// RegisterCommandHandler registers h for command type t. Registering a
// second handler for the same type fails with *MultipleHandlersError and
// keeps the first.
func (r *Registry) RegisterCommandHandler(t reflect.Type, h Invoker) error {
	return register(&r.commands, RoleCommand, t, h)
}

// RegisterQueryHandler registers h for query type t. Registering a second
// handler for the same type fails with *MultipleHandlersError and keeps the
// first.
func (r *Registry) RegisterQueryHandler(t reflect.Type, h Invoker) error {
	return register(&r.queries, RoleQuery, t, h)
}

func register(table *sync.Map, kind Role, t reflect.Type, h Invoker) error {
	if t == nil {
		return configErr("type cannot be nil")
	}
	if h == nil {
		return configErr("handler cannot be nil")
	}
	if _, loaded := table.LoadOrStore(t, h); loaded {
		return &MultipleHandlersError{MessageType: t, Kind: kind, Count: 2}
	}
	return nil
}

// RegisterEventHandler appends h to the handlers of event type t.
func (r *Registry) RegisterEventHandler(t reflect.Type, h EventInvoker) error {
	if t == nil {
		return configErr("type cannot be nil")
	}
	if h == nil {
		return configErr("handler cannot be nil")
	}
	v, _ := r.events.LoadOrStore(t, &eventHandlers{})
	list := v.(*eventHandlers)
	list.mu.Lock()
	list.handlers = append(list.handlers, h)
	list.mu.Unlock()
	return nil
}

// CommandHandler returns the handler for command type t. found is false
// when none is registered.
func (r *Registry) CommandHandler(t reflect.Type) (h Invoker, found bool, err error) {
	return lookup(&r.commands, t)
}

// QueryHandler returns the handler for query type t. found is false when
// none is registered.
func (r *Registry) QueryHandler(t reflect.Type) (h Invoker, found bool, err error) {
	return lookup(&r.queries, t)
}

func lookup(table *sync.Map, t reflect.Type) (Invoker, bool, error) {
	if t == nil {
		return nil, false, configErr("type cannot be nil")
	}
	v, ok := table.Load(t)
	if !ok {
		return nil, false, nil
	}
	return v.(Invoker), true, nil
}

// EventHandlers returns a copy of the handlers of event type t in
// registration order. The slice is empty, not nil, when none are registered.
func (r *Registry) EventHandlers(t reflect.Type) ([]EventInvoker, error) {
	if t == nil {
		return nil, configErr("type cannot be nil")
	}
	v, ok := r.events.Load(t)
	if !ok {
		return []EventInvoker{}, nil
	}
	list := v.(*eventHandlers)
	list.mu.RLock()
	defer list.mu.RUnlock()
	return slices.Clone(list.handlers), nil
}

// RegisterHandlersIn discovers the handlers declared by source and registers
// each of them. Discovery errors are returned unchanged; so is the first
// registration error, in which case descriptors registered before it stay
// registered.
//
// Example:
//
//	if err := registry.RegisterHandlersIn(&OrderHandlers{db: db}); err != nil {
//	    return err
//	}
func (r *Registry) RegisterHandlersIn(source any) error {
	if isNil(source) {
		return configErr("handler cannot be nil")
	}

	descriptors, err := r.strategy.Discover(source)
	if err != nil {
		return err
	}

	for _, d := range descriptors {
		if err := r.RegisterDescriptor(d); err != nil {
			return err
		}
	}

	logger.Debug(r.logger, "registered handlers",
		logger.With("source", reflect.TypeOf(source).String()),
		logger.With("strategy", r.strategy.Name()),
		logger.With("count", len(descriptors)),
	)
	return nil
}

// RegisterDescriptor registers a single discovered handler under its kind.
func (r *Registry) RegisterDescriptor(d Descriptor) error {
	switch d.Kind {
	case RoleCommand:
		return r.RegisterCommandHandler(d.MessageType, d.Invoke)
	case RoleQuery:
		return r.RegisterQueryHandler(d.MessageType, d.Invoke)
	case RoleEvent:
		if d.Invoke == nil {
			return r.RegisterEventHandler(d.MessageType, nil)
		}
		return r.RegisterEventHandler(d.MessageType, d.eventInvoker())
	default:
		return configErr("unknown handler kind for %s", d.HandlerName)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
