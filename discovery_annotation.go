package cqrs

import (
	"maps"
	"reflect"
	"slices"

	"github.com/bjaus/cqrs/logger"
)

// Annotations maps exported method names to the role of message each
// method handles.
type Annotations map[string]Role

// Annotated is implemented by types that declare their handler methods.
//
// Example:
//
//	type OrderHandlers struct{ store *OrderStore }
//
//	func (*OrderHandlers) Annotations() cqrs.Annotations {
//	    return cqrs.Annotations{
//	        "CreateOrder": cqrs.RoleCommand,
//	        "GetOrder":    cqrs.RoleQuery,
//	        "OnShipped":   cqrs.RoleEvent,
//	    }
//	}
//
//	func (h *OrderHandlers) CreateOrder(ctx context.Context, cmd CreateOrder) (string, error) { ... }
//	func (h *OrderHandlers) GetOrder(ctx context.Context, q GetOrder) (*Order, error)         { ... }
//	func (h *OrderHandlers) OnShipped(ctx context.Context, e OrderShipped) error              { ... }
type Annotated interface {
	Annotations() Annotations
}

// Detector reads the annotations of a source.
type Detector interface {
	Name() string
	Detect(source any) Annotations
}

// CoreDetector reads the table returned by the source's own Annotations
// method. When the source's type declares Annotations itself, the tables of
// embedded types are shadowed, as with any Go method.
type CoreDetector struct{}

// Name implements Detector.
func (CoreDetector) Name() string { return "CoreReflection" }

// Detect implements Detector.
func (CoreDetector) Detect(source any) Annotations {
	return annotationsOf(reflect.ValueOf(source))
}

// EnhancedDetector also merges the tables of embedded types, recursively,
// so a type that wraps handler types keeps their annotations even when it
// declares its own table. Shallower tables override deeper ones.
type EnhancedDetector struct{}

// Name implements Detector.
func (EnhancedDetector) Name() string { return "Enhanced" }

// Detect implements Detector.
func (EnhancedDetector) Detect(source any) Annotations {
	out := Annotations{}
	v := reflect.ValueOf(source)
	collectEmbedded(v, out, 0)
	maps.Copy(out, annotationsOf(v))
	return out
}

const maxEmbedDepth = 8

func collectEmbedded(v reflect.Value, into Annotations, depth int) {
	if depth > maxEmbedDepth {
		return
	}
	v = derefOrZero(v)
	if !v.IsValid() || v.Kind() != reflect.Struct {
		return
	}
	for i := range v.NumField() {
		if !v.Type().Field(i).Anonymous {
			continue
		}
		fv := v.Field(i)
		collectEmbedded(fv, into, depth+1)
		maps.Copy(into, annotationsOf(fv))
	}
}

// annotationsOf calls Annotations on v. Values that cannot be interfaced
// (unexported embedded fields) and nil pointers are replaced by a zero value
// of their type, since tables are declarations of the type.
func annotationsOf(v reflect.Value) Annotations {
	if !v.IsValid() {
		return nil
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		v = reflect.New(v.Type().Elem())
	}
	if !v.CanInterface() {
		v = zeroOf(v.Type())
	}
	a, ok := v.Interface().(Annotated)
	if !ok {
		return nil
	}
	return maps.Clone(a.Annotations())
}

func derefOrZero(v reflect.Value) reflect.Value {
	for v.IsValid() && v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.New(v.Type().Elem()).Elem()
		}
		v = v.Elem()
	}
	return v
}

func zeroOf(t reflect.Type) reflect.Value {
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem())
	}
	return reflect.New(t).Elem()
}

// AnnotationStrategy discovers handler methods named in a source's
// Annotations table.
type AnnotationStrategy struct {
	detector Detector
	logger   logger.Logger
}

var _ Strategy = (*AnnotationStrategy)(nil)

// NewAnnotationStrategy returns an AnnotationStrategy using detector, or
// CoreDetector when detector is nil.
func NewAnnotationStrategy(detector Detector, l logger.Logger) *AnnotationStrategy {
	if detector == nil {
		detector = CoreDetector{}
	}
	return &AnnotationStrategy{detector: detector, logger: l}
}

// Name implements Strategy.
func (s *AnnotationStrategy) Name() string {
	return "AnnotationDiscovery(" + s.detector.Name() + ")"
}

// Priority implements Strategy.
func (s *AnnotationStrategy) Priority() int { return AnnotationPriority }

// Supports reports whether source has at least one annotated method.
func (s *AnnotationStrategy) Supports(source any) bool {
	if isNil(source) {
		return false
	}
	t := reflect.TypeOf(source)
	for name := range s.detector.Detect(source) {
		if _, ok := t.MethodByName(name); ok {
			return true
		}
	}
	return false
}

// Discover validates and describes every annotated method of source, in
// method name order. The first invalid method fails discovery with a
// *DiscoveryError wrapping a *ValidationError.
func (s *AnnotationStrategy) Discover(source any) ([]Descriptor, error) {
	if isNil(source) {
		return nil, configErr("handler cannot be nil")
	}

	table := s.detector.Detect(source)
	if len(table) == 0 {
		return nil, nil
	}

	t := reflect.TypeOf(source)
	v := reflect.ValueOf(source)

	descriptors := make([]Descriptor, 0, len(table))
	for _, name := range slices.Sorted(maps.Keys(table)) {
		d, err := s.describe(source, t, v, name, table[name])
		if err != nil {
			return nil, &DiscoveryError{
				Strategy: s.Name(),
				Source:   source,
				Method:   name,
				Message:  "failed to process handler method",
				Err:      err,
			}
		}
		descriptors = append(descriptors, d)
	}

	logger.Debug(s.logger, "discovered annotated handlers",
		logger.With("source", t.String()),
		logger.With("count", len(descriptors)),
	)
	return descriptors, nil
}

func (s *AnnotationStrategy) describe(source any, t reflect.Type, v reflect.Value, name string, kind Role) (Descriptor, error) {
	subject := t.String() + "." + name
	invalid := func(reason string) error {
		return &ValidationError{Strategy: s.Name(), Source: source, Subject: subject, Reason: reason}
	}

	if kind < RoleCommand || kind > RoleEvent {
		return Descriptor{}, invalid("unknown handler role " + kind.String())
	}
	m, ok := t.MethodByName(name)
	if !ok {
		return Descriptor{}, invalid("annotated method does not exist")
	}

	bound, reason := bindMethod(kind, subject, v.Method(m.Index))
	if reason != "" {
		return Descriptor{}, invalid(reason)
	}
	if err := validateMessageType(s.Name(), source, subject, bound.param, kind); err != nil {
		return Descriptor{}, err
	}

	return NewDescriptor(bound.param, kind, bound.invoker(), t, name, s.Name())
}
