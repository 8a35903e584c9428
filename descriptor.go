package cqrs

import (
	"context"
	"reflect"
)

// Descriptor is one discovered handler: which message type it handles, how
// to call it, and where it came from.
//
// For events, Invoke always returns a nil result.
type Descriptor struct {
	MessageType reflect.Type
	Kind        Role
	Invoke      Invoker
	OwnerType   reflect.Type
	HandlerName string
	Source      string
}

// NewDescriptor validates and builds a Descriptor. Every field is required.
func NewDescriptor(messageType reflect.Type, kind Role, invoke Invoker, ownerType reflect.Type, handlerName, source string) (Descriptor, error) {
	switch {
	case messageType == nil:
		return Descriptor{}, configErr("message type cannot be nil")
	case kind < RoleCommand || kind > RoleEvent:
		return Descriptor{}, configErr("handler kind cannot be empty")
	case invoke == nil:
		return Descriptor{}, configErr("handler cannot be nil")
	case ownerType == nil:
		return Descriptor{}, configErr("owner type cannot be nil")
	case handlerName == "":
		return Descriptor{}, configErr("handler name cannot be empty")
	case source == "":
		return Descriptor{}, configErr("source cannot be empty")
	}
	return Descriptor{
		MessageType: messageType,
		Kind:        kind,
		Invoke:      invoke,
		OwnerType:   ownerType,
		HandlerName: handlerName,
		Source:      source,
	}, nil
}

// eventInvoker drops the result of an event descriptor's Invoke.
func (d Descriptor) eventInvoker() EventInvoker {
	invoke := d.Invoke
	return func(ctx context.Context, msg any) error {
		_, err := invoke(ctx, msg)
		return err
	}
}

func (d Descriptor) String() string {
	return d.Kind.String() + " handler " + d.HandlerName + " for " + typeName(d.MessageType) + " (" + d.Source + ")"
}
