package cqrs

import (
	"context"
	"errors"
)

type createOrder struct {
	CommandMarker
	CustomerID string `json:"customer_id" validate:"required"`
}

type getOrder struct {
	QueryMarker
	ID string `json:"id"`
}

type orderCreated struct {
	EventMarker
	ID string `json:"id"`
}

type ping struct {
	CommandMarker
}

type unmarked struct {
	Name string
}

type confused struct {
	CommandMarker
	EventMarker
}

var errBoom = errors.New("boom")

// orderHandlers declares one handler of each role through annotations.
type orderHandlers struct {
	created []string
}

func (*orderHandlers) Annotations() Annotations {
	return Annotations{
		"Create":    RoleCommand,
		"Get":       RoleQuery,
		"OnCreated": RoleEvent,
	}
}

func (h *orderHandlers) Create(ctx context.Context, cmd createOrder) (string, error) {
	if cmd.CustomerID == "" {
		return "", errBoom
	}
	return "order-" + cmd.CustomerID, nil
}

func (h *orderHandlers) Get(q getOrder) string {
	return "order " + q.ID
}

func (h *orderHandlers) OnCreated(ctx context.Context, e orderCreated) error {
	h.created = append(h.created, e.ID)
	return nil
}

// createOrderHandler implements CommandHandler[createOrder, string].
type createOrderHandler struct{}

func (createOrderHandler) HandleCommand(ctx context.Context, cmd createOrder) (string, error) {
	return "iface-" + cmd.CustomerID, nil
}

// getOrderHandler implements QueryHandler[getOrder, string].
type getOrderHandler struct{}

func (getOrderHandler) HandleQuery(ctx context.Context, q getOrder) (string, error) {
	return "iface " + q.ID, nil
}

// dualHandler handles createOrder through both an annotation and the
// CommandHandler interface.
type dualHandler struct{}

func (*dualHandler) Annotations() Annotations {
	return Annotations{"Create": RoleCommand}
}

func (*dualHandler) Create(ctx context.Context, cmd createOrder) (string, error) {
	return "annotated", nil
}

func (*dualHandler) HandleCommand(ctx context.Context, cmd createOrder) (string, error) {
	return "interface", nil
}

// mixedHandler is found by both strategies, but for different types.
type mixedHandler struct{}

func (*mixedHandler) Annotations() Annotations {
	return Annotations{"Create": RoleCommand}
}

func (*mixedHandler) Create(cmd createOrder) string { return "annotated" }

func (*mixedHandler) HandleQuery(ctx context.Context, q getOrder) (string, error) {
	return "interface", nil
}

// rawHandler handles the Command interface itself, which cannot be routed.
type rawHandler struct{}

func (rawHandler) HandleCommand(ctx context.Context, cmd Command) (any, error) { return nil, nil }

func (rawHandler) HandleEvent(ctx context.Context, e orderCreated) error { return nil }

type annotated map[string]Role

// tableHandlers exposes an arbitrary annotation table so signature
// validation can be exercised method by method.
type tableHandlers struct{ table annotated }

func (h tableHandlers) Annotations() Annotations { return Annotations(h.table) }

func (tableHandlers) TwoParams(a, b createOrder) (string, error)       { return "", nil }
func (tableHandlers) NoParams() (string, error)                         { return "", nil }
func (tableHandlers) VoidCommand(cmd createOrder)                       {}
func (tableHandlers) ErrorOnlyQuery(q getOrder) error                   { return nil }
func (tableHandlers) EventWithResult(e orderCreated) (string, error)    { return "", nil }
func (tableHandlers) Unmarked(u unmarked) string                        { return "" }
func (tableHandlers) Confused(c confused) string                        { return "" }
func (tableHandlers) WrongRole(e orderCreated) string                   { return "" }
func (tableHandlers) Interface(c Command) string                        { return "" }
func (tableHandlers) Valid(ctx context.Context, cmd createOrder) string { return "ok" }

type baseHandlers struct{}

func (baseHandlers) Annotations() Annotations {
	return Annotations{"OnCreated": RoleEvent}
}

func (baseHandlers) OnCreated(e orderCreated) error { return nil }

// wrappedHandlers shadows the table of the embedded baseHandlers.
type wrappedHandlers struct {
	baseHandlers
}

func (wrappedHandlers) Annotations() Annotations {
	return Annotations{"Create": RoleCommand}
}

func (wrappedHandlers) Create(cmd createOrder) string { return "wrapped" }

type plain struct{}

func (plain) DoSomething() {}
