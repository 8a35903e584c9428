package cqrs

import (
	"reflect"

	"github.com/bjaus/cqrs/logger"
)

type capability struct {
	method string
	kind   Role
}

var capabilities = []capability{
	{method: "HandleCommand", kind: RoleCommand},
	{method: "HandleQuery", kind: RoleQuery},
	{method: "HandleEvent", kind: RoleEvent},
}

// InterfaceStrategy discovers handlers from the CommandHandler,
// QueryHandler and EventHandler capabilities a source implements. Methods
// promoted from embedded types count.
//
// A capability whose message parameter is an interface type has no
// concrete message type to route on; it is skipped with a debug log.
type InterfaceStrategy struct {
	logger logger.Logger
}

var _ Strategy = (*InterfaceStrategy)(nil)

// NewInterfaceStrategy returns an InterfaceStrategy.
func NewInterfaceStrategy(l logger.Logger) *InterfaceStrategy {
	return &InterfaceStrategy{logger: l}
}

// Name implements Strategy.
func (s *InterfaceStrategy) Name() string { return "InterfaceDiscovery" }

// Priority implements Strategy.
func (s *InterfaceStrategy) Priority() int { return InterfacePriority }

// Supports reports whether source implements any handler capability.
func (s *InterfaceStrategy) Supports(source any) bool {
	if isNil(source) {
		return false
	}
	t := reflect.TypeOf(source)
	for _, c := range capabilities {
		if _, ok := implements(t, c); ok {
			return true
		}
	}
	return false
}

// Discover returns one descriptor per implemented capability.
func (s *InterfaceStrategy) Discover(source any) ([]Descriptor, error) {
	if isNil(source) {
		return nil, configErr("handler cannot be nil")
	}

	t := reflect.TypeOf(source)
	v := reflect.ValueOf(source)

	var descriptors []Descriptor
	for _, c := range capabilities {
		m, ok := implements(t, c)
		if !ok {
			continue
		}

		msgType, err := s.resolve(source, c, m)
		if err != nil {
			logger.Debug(s.logger, "skipping handler capability",
				logger.With("source", t.String()),
				logger.With("capability", c.method),
				logger.With("error", err),
			)
			continue
		}

		subject := t.String() + "." + c.method
		if err := validateMessageType(s.Name(), source, subject, msgType, c.kind); err != nil {
			return nil, err
		}

		bound, _ := bindMethod(c.kind, subject, v.Method(m.Index))
		d, err := NewDescriptor(msgType, c.kind, bound.invoker(), t, c.method, s.Name())
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}

	return descriptors, nil
}

// resolve returns the message type bound to capability c.
func (s *InterfaceStrategy) resolve(source any, c capability, m reflect.Method) (reflect.Type, error) {
	param := m.Type.In(2)
	if param.Kind() == reflect.Interface {
		return nil, &TypeResolutionError{
			Strategy:   s.Name(),
			Source:     source,
			Capability: c.method,
			Reason:     "message parameter is the interface type " + param.String(),
		}
	}
	return param, nil
}

// implements reports whether t has method c.method shaped as
//
//	(context.Context, M) (R, error)   commands and queries
//	(context.Context, M) error        events
func implements(t reflect.Type, c capability) (reflect.Method, bool) {
	m, ok := t.MethodByName(c.method)
	if !ok {
		return m, false
	}
	ft := m.Type // receiver is In(0)
	if ft.IsVariadic() || ft.NumIn() != 3 || ft.In(1) != contextType {
		return m, false
	}
	switch c.kind {
	case RoleEvent:
		return m, ft.NumOut() == 1 && ft.Out(0) == errorType
	default:
		return m, ft.NumOut() == 2 && ft.Out(0) != errorType && ft.Out(1) == errorType
	}
}
