package cqrs

import (
	"context"
	"reflect"
)

// Role is the kind of a message: command, query or event.
type Role uint8

const (
	RoleCommand Role = iota + 1
	RoleQuery
	RoleEvent
)

func (r Role) String() string {
	switch r {
	case RoleCommand:
		return "command"
	case RoleQuery:
		return "query"
	case RoleEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Command marks a message that changes state. Embed CommandMarker to
// implement it:
//
//	type CreateOrder struct {
//	    cqrs.CommandMarker
//	    CustomerID string
//	}
type Command interface{ CommandMessage() }

// Query marks a message that reads state.
type Query interface{ QueryMessage() }

// Event marks a message announcing that something happened.
type Event interface{ EventMessage() }

// CommandMarker implements Command when embedded.
type CommandMarker struct{}

// CommandMessage implements Command.
func (CommandMarker) CommandMessage() {}

// QueryMarker implements Query when embedded.
type QueryMarker struct{}

// QueryMessage implements Query.
func (QueryMarker) QueryMessage() {}

// EventMarker implements Event when embedded.
type EventMarker struct{}

// EventMessage implements Event.
func (EventMarker) EventMessage() {}

var (
	commandType = reflect.TypeFor[Command]()
	queryType   = reflect.TypeFor[Query]()
	eventType   = reflect.TypeFor[Event]()
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// RoleOf reports the role carried by t and the number of role markers t
// implements. A well-formed message type has exactly one; the role is only
// meaningful when the count is 1.
func RoleOf(t reflect.Type) (Role, int) {
	if t == nil {
		return 0, 0
	}
	var (
		role  Role
		count int
	)
	if t.Implements(commandType) {
		role, count = RoleCommand, count+1
	}
	if t.Implements(queryType) {
		role, count = RoleQuery, count+1
	}
	if t.Implements(eventType) {
		role, count = RoleEvent, count+1
	}
	return role, count
}

// validateMessageType checks that t is a concrete type carrying exactly one
// role marker, and that the marker agrees with want.
func validateMessageType(strategy string, source any, subject string, t reflect.Type, want Role) error {
	fail := func(reason string) error {
		return &ValidationError{Strategy: strategy, Source: source, Subject: subject, Reason: reason}
	}
	if t.Kind() == reflect.Interface {
		return fail("message parameter must be a concrete type, got interface " + t.String())
	}
	role, count := RoleOf(t)
	switch {
	case count == 0:
		return fail("message type must be annotated with Command, Query or Event: " + t.String())
	case count > 1:
		return fail("message type cannot have multiple message annotations: " + t.String())
	case role != want:
		return fail("message type " + t.String() + " is a " + role.String() + ", not a " + want.String())
	}
	return nil
}
