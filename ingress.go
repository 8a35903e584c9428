package cqrs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bjaus/cqrs/logger"
)

// Ingress errors, for use with errors.Is.
var (
	ErrNoSource       = errors.New("cqrs: no source matched message")
	ErrUnknownKey     = errors.New("cqrs: no message type bound to key")
	ErrInvalidPayload = errors.New("cqrs: invalid payload")
)

// Stages of a PayloadError.
const (
	StageUnmarshal = "unmarshal"
	StageValidate  = "validate"
)

// validatable is implemented by payloads that check themselves.
// Compatible with github.com/go-ozzo/ozzo-validation/v4.
type validatable interface {
	Validate() error
}

// PayloadError reports a payload that could not be decoded or failed
// validation.
type PayloadError struct {
	Key   string
	Stage string // StageUnmarshal or StageValidate
	Err   error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("cqrs: %s payload for key %q: %v", e.Stage, e.Key, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

func (e *PayloadError) Is(target error) bool {
	return target == ErrInvalidPayload || target == ErrDispatch
}

type binding struct {
	messageType reflect.Type
	role        Role
	decode      func(key string, payload json.RawMessage) (any, *PayloadError)
}

// Ingress turns raw JSON into typed messages and hands them to a
// Dispatcher: commands and queries are sent, events are published.
//
// Usage:
//  1. Create an ingress with NewIngress
//  2. Add sources with AddSource (or AddGroup for custom inspectors)
//  3. Bind keys to message types with Bind
//  4. Feed raw messages to Process
//
// Ingress is safe for concurrent use after configuration. Do not call
// AddSource, AddGroup or Bind after the first Process.
type Ingress struct {
	dispatcher *Dispatcher
	inspector  Inspector
	sources    []Source
	groups     []group
	bindings   map[string]binding
	validate   *validator.Validate
	logger     logger.Logger
	hooks      ingressHooks

	// Adaptive ordering: try last successful source first
	lastMatch atomic.Value // stores string
}

// group holds sources that share an inspector.
type group struct {
	inspector Inspector
	sources   []Source
}

// IngressOption configures an Ingress.
type IngressOption func(*Ingress)

// WithInspector replaces JSONInspector for sources added with AddSource.
func WithInspector(i Inspector) IngressOption {
	return func(in *Ingress) {
		if i != nil {
			in.inspector = i
		}
	}
}

// WithValidator replaces the struct validator applied to decoded payloads.
// A nil validator turns struct validation off; Validate methods still run.
func WithValidator(v *validator.Validate) IngressOption {
	return func(in *Ingress) {
		in.validate = v
	}
}

// WithGroup registers sources with their own inspector, as AddGroup does.
func WithGroup(inspector Inspector, sources ...Source) IngressOption {
	return func(in *Ingress) {
		in.AddGroup(inspector, sources...)
	}
}

// NewIngress creates an Ingress feeding d.
//
// Example:
//
//	in := cqrs.NewIngress(d,
//	    cqrs.WithOnUnknownKey(func(ctx context.Context, source, key string) error {
//	        return nil // skip messages nobody handles
//	    }),
//	)
//	in.AddSource(cqrs.EnvelopeSource("envelope", "type", "payload"))
//	_ = cqrs.Bind[CreateOrder](in, "CreateOrder")
//	result, err := in.Process(ctx, body)
func NewIngress(d *Dispatcher, opts ...IngressOption) *Ingress {
	in := &Ingress{
		dispatcher: d,
		inspector:  JSONInspector(),
		bindings:   make(map[string]binding),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     d.logger,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// AddSource adds a source to the default inspector group. Sources are
// matched in the order they were added, except that the source which
// matched the previous message is tried first.
func (in *Ingress) AddSource(s Source) {
	in.sources = append(in.sources, s)
}

// AddGroup registers sources with a custom inspector. Use this for sources
// whose messages another inspector reads better. A nil inspector means the
// default one.
//
// Groups are checked after the default group, in registration order.
//
// Example:
//
//	in.AddGroup(headerInspector, kafkaSource, natsSource)
func (in *Ingress) AddGroup(inspector Inspector, sources ...Source) {
	in.groups = append(in.groups, group{inspector: inspector, sources: sources})
}

// Bind routes key to message type T. T must carry exactly one role marker.
//
// This is a package-level function (not a method) because methods cannot
// have type parameters of their own.
func Bind[T any](in *Ingress, key string) error {
	t := reflect.TypeFor[T]()
	if key == "" {
		return configErr("key cannot be empty")
	}
	if _, dup := in.bindings[key]; dup {
		return configErr("key already bound: %s", key)
	}

	role, count := RoleOf(t)
	if t.Kind() == reflect.Interface || count != 1 {
		return &ValidationError{
			Subject: t.String(),
			Reason:  "message type must carry exactly one of Command, Query or Event",
		}
	}

	in.bindings[key] = binding{
		messageType: t,
		role:        role,
		decode: func(key string, payload json.RawMessage) (any, *PayloadError) {
			var msg T
			if err := json.Unmarshal(payload, &msg); err != nil {
				return nil, &PayloadError{Key: key, Stage: StageUnmarshal, Err: err}
			}
			if err := in.check(&msg); err != nil {
				return nil, &PayloadError{Key: key, Stage: StageValidate, Err: err}
			}
			return msg, nil
		},
	}
	return nil
}

// check runs the payload's own Validate method, if any, then the struct
// validator for struct payloads.
func (in *Ingress) check(ptr any) error {
	elem := reflect.ValueOf(ptr).Elem()
	if v, ok := elem.Interface().(validatable); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	} else if v, ok := ptr.(validatable); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	if in.validate == nil || reflect.Indirect(elem).Kind() != reflect.Struct {
		return nil
	}
	if elem.Kind() == reflect.Pointer && elem.IsNil() {
		return nil
	}
	return in.validate.Struct(elem.Interface())
}

// Process decodes raw and dispatches it. Commands and queries return the
// handler's result; events return nil.
//
// The flow:
//  1. Use discriminators to find a matching source
//  2. Parse the envelope with the matched source
//  3. Look up the message type bound to the envelope key
//  4. Unmarshal and validate the payload
//  5. Send or Publish according to the message's role
//  6. Report the outcome to the envelope's Replier if there is one
//
// Hooks are called at appropriate points throughout this flow. A skip hook
// returning nil makes Process return a nil result and a nil error. When the
// envelope has a Replier, the error Process returns is the one from Reply or
// Fail.
func (in *Ingress) Process(ctx context.Context, raw []byte) (any, error) {
	src, err := in.match(raw)
	if src == nil {
		return nil, in.handleNoSource(ctx, raw, err)
	}

	env, err := src.Parse(raw)
	if err != nil {
		return nil, in.handleParseError(ctx, src, err)
	}

	ctx = in.callOnParse(ctx, src, env.Key)

	b, ok := in.bindings[env.Key]
	if !ok {
		return in.complete(ctx, env, nil, in.handleUnknownKey(ctx, src, env.Key))
	}

	msg, perr := b.decode(env.Key, env.Payload)
	if perr != nil {
		return in.complete(ctx, env, nil, in.handlePayloadError(ctx, src, perr))
	}

	logger.Debug(in.logger, "ingress message decoded",
		logger.With("source", src.Name()),
		logger.With("key", env.Key),
		logger.With("messageType", b.messageType.String()),
	)

	in.callOnDispatch(ctx, src, env.Key)

	var result any
	start := time.Now()
	if b.role == RoleEvent {
		err = in.dispatcher.Publish(ctx, msg)
	} else {
		result, err = in.dispatcher.Send(ctx, msg)
	}
	in.callDone(ctx, src, env.Key, err, time.Since(start))

	return in.complete(ctx, env, result, err)
}

// complete hands the outcome to the envelope's Replier, if any.
func (in *Ingress) complete(ctx context.Context, env Envelope, result any, err error) (any, error) {
	if env.Replier == nil {
		return result, err
	}
	if err != nil {
		return nil, env.Replier.Fail(ctx, err)
	}

	body := json.RawMessage("{}")
	if result != nil {
		encoded, merr := json.Marshal(result)
		if merr != nil {
			return nil, env.Replier.Fail(ctx, fmt.Errorf("cqrs: marshal result for key %q: %w", env.Key, merr))
		}
		body = encoded
	}
	return result, env.Replier.Reply(ctx, body)
}

// viewCache caches views per inspector so the same raw bytes are inspected
// once per inspector while matching.
type viewCache struct {
	raw   []byte
	views map[Inspector]viewResult
	err   error // first inspection error
}

type viewResult struct {
	view View
	ok   bool
}

func newViewCache(raw []byte) *viewCache {
	return &viewCache{
		raw:   raw,
		views: make(map[Inspector]viewResult),
	}
}

// get returns a cached view or inspects and caches it.
func (c *viewCache) get(insp Inspector) (View, bool) {
	cacheable := reflect.TypeOf(insp).Comparable()
	if cacheable {
		if result, ok := c.views[insp]; ok {
			return result.view, result.ok
		}
	}

	view, err := insp.Inspect(c.raw)
	if err != nil && c.err == nil {
		c.err = err
	}
	if cacheable {
		c.views[insp] = viewResult{view: view, ok: err == nil}
	}
	return view, err == nil
}

// match finds a source whose discriminator matches raw, trying the last
// matched source first. The error explains a miss.
func (in *Ingress) match(raw []byte) (Source, error) {
	cache := newViewCache(raw)

	if last, _ := in.lastMatch.Load().(string); last != "" {
		named := func(s Source) bool { return s.Name() == last }
		if src := in.find(cache, named); src != nil {
			return src, nil
		}
	}

	src := in.find(cache, nil)
	if src == nil {
		if cache.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoSource, cache.err)
		}
		return nil, ErrNoSource
	}
	in.lastMatch.Store(src.Name())
	return src, nil
}

// find searches the default group, then custom groups, for a source
// accepted by filter (any source when filter is nil) whose discriminator
// matches.
func (in *Ingress) find(cache *viewCache, filter func(Source) bool) Source {
	if src := in.findIn(cache, in.inspector, in.sources, filter); src != nil {
		return src
	}
	for _, g := range in.groups {
		insp := g.inspector
		if insp == nil {
			insp = in.inspector
		}
		if src := in.findIn(cache, insp, g.sources, filter); src != nil {
			return src
		}
	}
	return nil
}

func (in *Ingress) findIn(cache *viewCache, insp Inspector, sources []Source, filter func(Source) bool) Source {
	if len(sources) == 0 {
		return nil
	}
	view, ok := cache.get(insp)
	if !ok {
		return nil
	}
	for _, src := range sources {
		if filter != nil && !filter(src) {
			continue
		}
		if src.Discriminator().Match(view) {
			return src
		}
	}
	return nil
}
