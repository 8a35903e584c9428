package cqrs

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type AnnotationStrategySuite struct {
	suite.Suite
	strategy *AnnotationStrategy
}

func (s *AnnotationStrategySuite) SetupTest() {
	s.strategy = NewAnnotationStrategy(nil, nil)
}

func TestAnnotationStrategySuite(t *testing.T) {
	suite.Run(t, new(AnnotationStrategySuite))
}

func (s *AnnotationStrategySuite) TestMetadata() {
	s.Assert().Equal("AnnotationDiscovery(CoreReflection)", s.strategy.Name())
	s.Assert().Equal(100, s.strategy.Priority())
	s.Assert().Equal("AnnotationDiscovery(Enhanced)", NewAnnotationStrategy(EnhancedDetector{}, nil).Name())
}

func (s *AnnotationStrategySuite) TestSupports() {
	s.Assert().True(s.strategy.Supports(&orderHandlers{}))
	s.Assert().False(s.strategy.Supports(plain{}))
	s.Assert().False(s.strategy.Supports(createOrderHandler{}))
	s.Assert().False(s.strategy.Supports(nil))
	s.Assert().False(s.strategy.Supports(tableHandlers{table: annotated{"Missing": RoleCommand}}))
}

func (s *AnnotationStrategySuite) TestDiscover() {
	h := &orderHandlers{}
	descriptors, err := s.strategy.Discover(h)
	s.Require().NoError(err)
	s.Require().Len(descriptors, 3)

	// method name order
	s.Assert().Equal("Create", descriptors[0].HandlerName)
	s.Assert().Equal(RoleCommand, descriptors[0].Kind)
	s.Assert().Equal(reflect.TypeFor[createOrder](), descriptors[0].MessageType)

	s.Assert().Equal("Get", descriptors[1].HandlerName)
	s.Assert().Equal(RoleQuery, descriptors[1].Kind)
	s.Assert().Equal(reflect.TypeFor[getOrder](), descriptors[1].MessageType)

	s.Assert().Equal("OnCreated", descriptors[2].HandlerName)
	s.Assert().Equal(RoleEvent, descriptors[2].Kind)
	s.Assert().Equal(reflect.TypeFor[orderCreated](), descriptors[2].MessageType)

	for _, d := range descriptors {
		s.Assert().Equal(reflect.TypeFor[*orderHandlers](), d.OwnerType)
		s.Assert().Equal("AnnotationDiscovery(CoreReflection)", d.Source)
	}
}

func (s *AnnotationStrategySuite) TestInvokeDescriptors() {
	h := &orderHandlers{}
	descriptors, err := s.strategy.Discover(h)
	s.Require().NoError(err)
	ctx := context.Background()

	result, err := descriptors[0].Invoke(ctx, createOrder{CustomerID: "42"})
	s.Require().NoError(err)
	s.Assert().Equal("order-42", result)

	result, err = descriptors[1].Invoke(ctx, getOrder{ID: "9"})
	s.Require().NoError(err)
	s.Assert().Equal("order 9", result)

	result, err = descriptors[2].Invoke(ctx, orderCreated{ID: "e"})
	s.Require().NoError(err)
	s.Assert().Nil(result)
	s.Assert().Equal([]string{"e"}, h.created)
}

func (s *AnnotationStrategySuite) TestHandlerErrorPassesThrough() {
	descriptors, err := s.strategy.Discover(&orderHandlers{})
	s.Require().NoError(err)

	_, err = descriptors[0].Invoke(context.Background(), createOrder{})
	s.Assert().Same(errBoom, err)
}

func (s *AnnotationStrategySuite) TestArgumentMismatchIsInvocationError() {
	descriptors, err := s.strategy.Discover(&orderHandlers{})
	s.Require().NoError(err)

	_, err = descriptors[0].Invoke(context.Background(), getOrder{})

	var ierr *InvocationError
	s.Require().ErrorAs(err, &ierr)
	s.Assert().Equal("*cqrs.orderHandlers.Create", ierr.Handler)
	s.Assert().Contains(err.Error(), "failed to invoke handler method")
	s.Assert().ErrorIs(err, ErrDispatch)
}

func (s *AnnotationStrategySuite) TestNilContextIsReplaced() {
	descriptors, err := s.strategy.Discover(tableHandlers{table: annotated{"Valid": RoleCommand}})
	s.Require().NoError(err)

	//nolint:staticcheck // a nil context must not reach the handler
	result, err := descriptors[0].Invoke(nil, createOrder{})
	s.Require().NoError(err)
	s.Assert().Equal("ok", result)
}

func (s *AnnotationStrategySuite) TestValidationFailures() {
	tests := map[string]struct {
		method string
		role   Role
		reason string
	}{
		"two parameters":        {"TwoParams", RoleCommand, "must have exactly one message parameter"},
		"no parameters":         {"NoParams", RoleCommand, "must have exactly one message parameter"},
		"void command":          {"VoidCommand", RoleCommand, "command handler must return a value"},
		"error only query":      {"ErrorOnlyQuery", RoleQuery, "query handler must return a value"},
		"event with result":     {"EventWithResult", RoleEvent, "event handler must not return a value"},
		"unmarked message":      {"Unmarked", RoleCommand, "message type must be annotated with Command, Query or Event"},
		"multiple markers":      {"Confused", RoleCommand, "message type cannot have multiple message annotations"},
		"role mismatch":         {"WrongRole", RoleCommand, "is a event, not a command"},
		"interface parameter":   {"Interface", RoleCommand, "must be a concrete type"},
		"missing method":        {"Missing", RoleCommand, "annotated method does not exist"},
		"unknown role":          {"Valid", Role(0), "unknown handler role"},
	}

	for name, tc := range tests {
		s.Run(name, func() {
			source := tableHandlers{table: annotated{tc.method: tc.role}}
			_, err := s.strategy.Discover(source)

			var derr *DiscoveryError
			s.Require().ErrorAs(err, &derr)
			s.Assert().Equal(s.strategy.Name(), derr.Strategy)
			s.Assert().Equal(tc.method, derr.Method)
			s.Assert().Equal(source, derr.Source)

			var verr *ValidationError
			s.Require().ErrorAs(err, &verr)
			s.Assert().Contains(verr.Reason, tc.reason)
			s.Assert().ErrorIs(err, ErrValidation)
		})
	}
}

func (s *AnnotationStrategySuite) TestDiscoverNil() {
	_, err := s.strategy.Discover(nil)
	s.Assert().ErrorIs(err, ErrConfiguration)
}

func (s *AnnotationStrategySuite) TestDiscoverWithoutAnnotations() {
	descriptors, err := s.strategy.Discover(plain{})
	s.Assert().NoError(err)
	s.Assert().Empty(descriptors)
}

func TestHandlerPanicPropagates(t *testing.T) {
	descriptors, err := NewAnnotationStrategy(nil, nil).Discover(&panicking{})
	require.NoError(t, err)
	require.Len(t, descriptors, 1)

	assert.PanicsWithValue(t, "kaboom", func() {
		_, _ = descriptors[0].Invoke(context.Background(), createOrder{})
	})
}

type panicking struct{}

func (*panicking) Annotations() Annotations { return Annotations{"Create": RoleCommand} }

func (*panicking) Create(createOrder) string { panic("kaboom") }

func TestDetectors(t *testing.T) {
	t.Run("core detector sees only the outer table", func(t *testing.T) {
		table := CoreDetector{}.Detect(wrappedHandlers{})
		assert.Equal(t, Annotations{"Create": RoleCommand}, table)
	})

	t.Run("enhanced detector merges embedded tables", func(t *testing.T) {
		table := EnhancedDetector{}.Detect(wrappedHandlers{})
		assert.Equal(t, Annotations{"Create": RoleCommand, "OnCreated": RoleEvent}, table)
	})

	t.Run("enhanced detector through pointers", func(t *testing.T) {
		table := EnhancedDetector{}.Detect(&wrappedHandlers{})
		assert.Equal(t, Annotations{"Create": RoleCommand, "OnCreated": RoleEvent}, table)
	})

	t.Run("outer table wins over embedded", func(t *testing.T) {
		table := EnhancedDetector{}.Detect(overridingHandlers{})
		assert.Equal(t, RoleQuery, table["OnCreated"])
	})

	t.Run("promoted table is seen by core detector", func(t *testing.T) {
		table := CoreDetector{}.Detect(promotedHandlers{})
		assert.Equal(t, Annotations{"OnCreated": RoleEvent}, table)
	})

	t.Run("detect returns a copy", func(t *testing.T) {
		h := &orderHandlers{}
		table := CoreDetector{}.Detect(h)
		table["Extra"] = RoleCommand
		assert.NotContains(t, CoreDetector{}.Detect(h), "Extra")
	})

	t.Run("no table", func(t *testing.T) {
		assert.Empty(t, CoreDetector{}.Detect(plain{}))
		assert.Empty(t, EnhancedDetector{}.Detect(plain{}))
	})
}

type overridingHandlers struct{ baseHandlers }

func (overridingHandlers) Annotations() Annotations {
	return Annotations{"OnCreated": RoleQuery}
}

type promotedHandlers struct{ baseHandlers }

func TestEnhancedStrategyDiscoversEmbeddedHandlers(t *testing.T) {
	core, err := NewAnnotationStrategy(CoreDetector{}, nil).Discover(wrappedHandlers{})
	require.NoError(t, err)
	require.Len(t, core, 1)
	assert.Equal(t, "Create", core[0].HandlerName)

	enhanced, err := NewAnnotationStrategy(EnhancedDetector{}, nil).Discover(wrappedHandlers{})
	require.NoError(t, err)
	require.Len(t, enhanced, 2)
	assert.Equal(t, "Create", enhanced[0].HandlerName)
	assert.Equal(t, "OnCreated", enhanced[1].HandlerName)
	assert.Equal(t, RoleEvent, enhanced[1].Kind)
}
