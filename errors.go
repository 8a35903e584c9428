package cqrs

import (
	"errors"
	"fmt"
	"reflect"
)

// Sentinel errors for use with errors.Is. Every error produced by this
// package matches ErrDispatch in addition to its own sentinel.
var (
	ErrDispatch         = errors.New("cqrs")
	ErrConfiguration    = errors.New("cqrs: configuration error")
	ErrHandlerNotFound  = errors.New("cqrs: handler not found")
	ErrMultipleHandlers = errors.New("cqrs: multiple handlers found")
	ErrDiscovery        = errors.New("cqrs: handler discovery failed")
	ErrValidation       = errors.New("cqrs: handler validation failed")
	ErrTypeResolution   = errors.New("cqrs: type resolution failed")
)

// ConfigurationError reports a caller mistake: a nil argument, an index out
// of range, a result of the wrong type.
type ConfigurationError struct {
	Reason string
}

func configErr(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string { return "cqrs: " + e.Reason }

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration || target == ErrDispatch
}

// HandlerNotFoundError is returned by Send when neither a command nor a
// query handler is registered for the message type.
type HandlerNotFoundError struct {
	MessageType reflect.Type
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("cqrs: no handler found for message type: %s", typeName(e.MessageType))
}

func (e *HandlerNotFoundError) Is(target error) bool {
	return target == ErrHandlerNotFound || target == ErrDispatch
}

// MultipleHandlersError is returned when a second command or query handler
// is registered for a message type, or when two discovery strategies claim
// the same message type under FailFast.
type MultipleHandlersError struct {
	MessageType reflect.Type
	Kind        Role
	Count       int
}

func (e *MultipleHandlersError) Error() string {
	return fmt.Sprintf("cqrs: multiple handlers found for message type: %s (found %d handlers)",
		typeName(e.MessageType), e.Count)
}

func (e *MultipleHandlersError) Is(target error) bool {
	return target == ErrMultipleHandlers || target == ErrDispatch
}

// DiscoveryError is returned when a strategy fails to discover the handlers
// of a source. Err holds the underlying cause, often a *ValidationError.
type DiscoveryError struct {
	Strategy string
	Source   any
	Method   string
	Message  string
	Err      error
}

func (e *DiscoveryError) Error() string {
	msg := fmt.Sprintf("cqrs: %s: %s", e.Strategy, e.Message)
	if e.Method != "" {
		msg += ": " + e.Method
	}
	if e.Source != nil {
		msg += fmt.Sprintf(" (source %T)", e.Source)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

func (e *DiscoveryError) Is(target error) bool {
	return target == ErrDiscovery || target == ErrDispatch
}

// ValidationError reports a handler that is shaped wrong: bad parameter
// list, bad return values, or a message type without exactly one role.
type ValidationError struct {
	Strategy string
	Source   any
	Subject  string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("cqrs: invalid handler %s: %s", e.Subject, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || target == ErrDiscovery || target == ErrDispatch
}

// TypeResolutionError reports a handler capability whose message type
// cannot be determined, such as HandleCommand taking an interface type.
type TypeResolutionError struct {
	Strategy   string
	Source     any
	Capability string
	Reason     string
}

func (e *TypeResolutionError) Error() string {
	return fmt.Sprintf("cqrs: cannot resolve message type of %s on %T: %s", e.Capability, e.Source, e.Reason)
}

func (e *TypeResolutionError) Is(target error) bool {
	return target == ErrTypeResolution || target == ErrDiscovery || target == ErrDispatch
}

// InvocationError reports a failure to call a handler at all, as opposed
// to an error returned by the handler itself.
type InvocationError struct {
	Handler string
	Err     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("cqrs: failed to invoke handler method: %s: %v", e.Handler, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

func (e *InvocationError) Is(target error) bool { return target == ErrDispatch }

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
