package cqrs

import (
	"context"
	"fmt"
	"reflect"
)

// boundMethod is a handler method that passed signature validation.
type boundMethod struct {
	name         string
	fn           reflect.Value
	param        reflect.Type
	withContext  bool
	returnsValue bool
	returnsError bool
}

// bindMethod checks that fn looks like a handler of the given kind:
//
//	func(M) | func(context.Context, M)
//
// returning (R) or (R, error) for commands and queries, and nothing or error
// for events. The returned reason is empty when fn is acceptable.
func bindMethod(kind Role, name string, fn reflect.Value) (boundMethod, string) {
	t := fn.Type()
	m := boundMethod{name: name, fn: fn}

	switch {
	case t.IsVariadic():
		return m, "must have exactly one message parameter"
	case t.NumIn() == 1 && t.In(0) != contextType:
		m.param = t.In(0)
	case t.NumIn() == 2 && t.In(0) == contextType:
		m.param, m.withContext = t.In(1), true
	default:
		return m, "must have exactly one message parameter"
	}

	switch kind {
	case RoleCommand, RoleQuery:
		switch {
		case t.NumOut() == 1 && t.Out(0) != errorType:
			m.returnsValue = true
		case t.NumOut() == 2 && t.Out(0) != errorType && t.Out(1) == errorType:
			m.returnsValue, m.returnsError = true, true
		default:
			return m, kind.String() + " handler must return a value"
		}
	case RoleEvent:
		switch {
		case t.NumOut() == 0:
		case t.NumOut() == 1 && t.Out(0) == errorType:
			m.returnsError = true
		default:
			return m, "event handler must not return a value"
		}
	}

	return m, ""
}

// invoker calls the method reflectively. Errors returned by the method pass
// through untouched and so do panics; only a message that cannot be passed
// to the method is reported as an *InvocationError.
func (m boundMethod) invoker() Invoker {
	return func(ctx context.Context, msg any) (any, error) {
		arg := reflect.ValueOf(msg)
		if !arg.IsValid() || !arg.Type().AssignableTo(m.param) {
			return nil, &InvocationError{
				Handler: m.name,
				Err:     fmt.Errorf("message of type %T is not assignable to %s", msg, m.param),
			}
		}

		in := []reflect.Value{arg}
		if m.withContext {
			if ctx == nil {
				ctx = context.Background()
			}
			in = []reflect.Value{reflect.ValueOf(ctx), arg}
		}

		out := m.fn.Call(in)

		if m.returnsError {
			if errv := out[len(out)-1]; !errv.IsNil() {
				return nil, errv.Interface().(error)
			}
		}
		if m.returnsValue {
			return out[0].Interface(), nil
		}
		return nil, nil
	}
}
