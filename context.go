package cqrs

import (
	"maps"
	"reflect"
	"sync"
)

// MiddlewareContext carries per-dispatch metadata through the middleware
// chain. A new one is created for every Send; Publish creates one and
// shares it across all handlers of that event.
type MiddlewareContext struct {
	role        Role
	messageType reflect.Type

	mu    sync.RWMutex
	attrs map[string]any
}

// NewMiddlewareContext returns a context for a message of type t dispatched
// as role.
func NewMiddlewareContext(role Role, t reflect.Type) *MiddlewareContext {
	return &MiddlewareContext{role: role, messageType: t, attrs: make(map[string]any)}
}

// Role returns the role the message is being dispatched as.
func (c *MiddlewareContext) Role() Role { return c.role }

// MessageType returns the dynamic type of the message.
func (c *MiddlewareContext) MessageType() reflect.Type { return c.messageType }

// Set stores an attribute, replacing any previous value.
func (c *MiddlewareContext) Set(key string, value any) {
	c.mu.Lock()
	c.attrs[key] = value
	c.mu.Unlock()
}

// Get returns an attribute and whether it was set.
func (c *MiddlewareContext) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.attrs[key]
	return v, ok
}

// Has reports whether key is set.
func (c *MiddlewareContext) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes an attribute.
func (c *MiddlewareContext) Delete(key string) {
	c.mu.Lock()
	delete(c.attrs, key)
	c.mu.Unlock()
}

// Attributes returns a copy of all attributes.
func (c *MiddlewareContext) Attributes() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.attrs)
}

// Value returns the attribute at key as a T. ok is false when the key is
// missing or holds another type.
func Value[T any](c *MiddlewareContext, key string) (v T, ok bool) {
	raw, found := c.Get(key)
	if !found {
		return v, false
	}
	v, ok = raw.(T)
	return v, ok
}
