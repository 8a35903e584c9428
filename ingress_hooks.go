package cqrs

import (
	"context"
	"fmt"
	"time"

	"github.com/bjaus/cqrs/logger"
)

// OnParseFunc is called after a source parses a message. Use it to enrich
// the context with logging fields or trace spans; the returned context is
// used for the rest of the message.
type OnParseFunc func(ctx context.Context, source, key string) context.Context

// OnNoSourceFunc is called when no source matches the message.
// Return nil to skip the message, return an error to fail.
type OnNoSourceFunc func(ctx context.Context, raw []byte) error

// OnParseErrorFunc is called when the matched source fails to parse.
// Return nil to skip, return an error to fail.
type OnParseErrorFunc func(ctx context.Context, source string, err error) error

// OnUnknownKeyFunc is called when no message type is bound to the key.
// Return nil to skip, return an error to fail.
type OnUnknownKeyFunc func(ctx context.Context, source, key string) error

// OnUnmarshalErrorFunc is called when the payload cannot be decoded into the
// bound message type. Return nil to skip, return an error to fail.
type OnUnmarshalErrorFunc func(ctx context.Context, source, key string, err error) error

// OnValidationErrorFunc is called when the decoded message fails validation.
// Return nil to skip, return an error to fail.
type OnValidationErrorFunc func(ctx context.Context, source, key string, err error) error

// ingressHooks holds the hook functions of an Ingress.
type ingressHooks struct {
	onParse           []OnParseFunc
	onNoSource        []OnNoSourceFunc
	onParseError      []OnParseErrorFunc
	onUnknownKey      []OnUnknownKeyFunc
	onUnmarshalError  []OnUnmarshalErrorFunc
	onValidationError []OnValidationErrorFunc
}

// WithOnParse adds a hook called after a source parses a message.
// Multiple hooks are called in order, with context chaining through each.
//
// Example:
//
//	cqrs.WithOnParse(func(ctx context.Context, source, key string) context.Context {
//	    return cqrs.WithCorrelationID(ctx, key+"-"+uuid.NewString())
//	})
func WithOnParse(fn OnParseFunc) IngressOption {
	return func(in *Ingress) {
		in.hooks.onParse = append(in.hooks.onParse, fn)
	}
}

// WithOnNoSource adds a hook called when no source matches the message.
// Multiple hooks are called in order; first error wins.
//
// Example:
//
//	cqrs.WithOnNoSource(func(ctx context.Context, raw []byte) error {
//	    log.Warn("unknown message format")
//	    return nil // skip
//	})
func WithOnNoSource(fn OnNoSourceFunc) IngressOption {
	return func(in *Ingress) {
		in.hooks.onNoSource = append(in.hooks.onNoSource, fn)
	}
}

// WithOnParseError adds a hook called when a source fails to parse.
// Multiple hooks are called in order; first error wins.
func WithOnParseError(fn OnParseErrorFunc) IngressOption {
	return func(in *Ingress) {
		in.hooks.onParseError = append(in.hooks.onParseError, fn)
	}
}

// WithOnUnknownKey adds a hook called when no message type is bound to the
// parsed key. Multiple hooks are called in order; first error wins.
//
// Example:
//
//	cqrs.WithOnUnknownKey(func(ctx context.Context, source, key string) error {
//	    log.Warn("no binding", logger.With("key", key))
//	    return nil // skip
//	})
func WithOnUnknownKey(fn OnUnknownKeyFunc) IngressOption {
	return func(in *Ingress) {
		in.hooks.onUnknownKey = append(in.hooks.onUnknownKey, fn)
	}
}

// WithOnUnmarshalError adds a hook called when a payload cannot be decoded.
// Multiple hooks are called in order; first error wins.
func WithOnUnmarshalError(fn OnUnmarshalErrorFunc) IngressOption {
	return func(in *Ingress) {
		in.hooks.onUnmarshalError = append(in.hooks.onUnmarshalError, fn)
	}
}

// WithOnValidationError adds a hook called when a decoded message fails
// validation. Multiple hooks are called in order; first error wins.
//
// Example:
//
//	cqrs.WithOnValidationError(func(ctx context.Context, source, key string, err error) error {
//	    log.Error("invalid message", logger.With("error", err))
//	    return nil // skip invalid payloads
//	})
func WithOnValidationError(fn OnValidationErrorFunc) IngressOption {
	return func(in *Ingress) {
		in.hooks.onValidationError = append(in.hooks.onValidationError, fn)
	}
}

// OnParseHook is an optional interface that sources can implement to add
// source-specific context enrichment. Called after global OnParse hooks.
type OnParseHook interface {
	OnParse(ctx context.Context, key string) context.Context
}

// OnDispatchHook is an optional interface that sources can implement to add
// source-specific behavior just before the message is dispatched.
type OnDispatchHook interface {
	OnDispatch(ctx context.Context, key string)
}

// OnSuccessHook is an optional interface that sources can implement to add
// source-specific behavior after a successful dispatch.
type OnSuccessHook interface {
	OnSuccess(ctx context.Context, key string, duration time.Duration)
}

// OnFailureHook is an optional interface that sources can implement to add
// source-specific behavior after a failed dispatch.
type OnFailureHook interface {
	OnFailure(ctx context.Context, key string, err error, duration time.Duration)
}

// OnNoHandlerHook is an optional interface that sources can implement to
// decide what happens to a key with no bound message type. Called after
// global OnUnknownKey hooks; if either returns an error, that error is used.
type OnNoHandlerHook interface {
	OnNoHandler(ctx context.Context, key string) error
}

// OnUnmarshalErrorHook is an optional interface that sources can implement to
// add source-specific behavior on unmarshal errors. Called after global
// hooks; if either returns an error, that error is used.
type OnUnmarshalErrorHook interface {
	OnUnmarshalError(ctx context.Context, key string, err error) error
}

// OnValidationErrorHook is an optional interface that sources can implement
// to add source-specific behavior on validation errors. Called after global
// hooks; if either returns an error, that error is used.
type OnValidationErrorHook interface {
	OnValidationError(ctx context.Context, key string, err error) error
}

func (in *Ingress) callOnParse(ctx context.Context, src Source, key string) context.Context {
	for _, fn := range in.hooks.onParse {
		ctx = fn(ctx, src.Name(), key)
	}
	if h, ok := src.(OnParseHook); ok {
		ctx = h.OnParse(ctx, key)
	}
	return ctx
}

func (in *Ingress) callOnDispatch(ctx context.Context, src Source, key string) {
	if h, ok := src.(OnDispatchHook); ok {
		h.OnDispatch(ctx, key)
	}
}

func (in *Ingress) callDone(ctx context.Context, src Source, key string, err error, d time.Duration) {
	if err != nil {
		if h, ok := src.(OnFailureHook); ok {
			h.OnFailure(ctx, key, err, d)
		}
		return
	}
	if h, ok := src.(OnSuccessHook); ok {
		h.OnSuccess(ctx, key, d)
	}
}

// handleNoSource returns the first hook error, nil when hooks skip the
// message, or fallback when there are no hooks.
func (in *Ingress) handleNoSource(ctx context.Context, raw []byte, fallback error) error {
	for _, fn := range in.hooks.onNoSource {
		if err := fn(ctx, raw); err != nil {
			return err
		}
	}
	if len(in.hooks.onNoSource) > 0 {
		return nil
	}
	return fallback
}

func (in *Ingress) handleParseError(ctx context.Context, src Source, parseErr error) error {
	for _, fn := range in.hooks.onParseError {
		if err := fn(ctx, src.Name(), parseErr); err != nil {
			return err
		}
	}
	if len(in.hooks.onParseError) > 0 {
		return nil
	}
	return fmt.Errorf("cqrs: parse failed for source %s: %w", src.Name(), parseErr)
}

func (in *Ingress) handleUnknownKey(ctx context.Context, src Source, key string) error {
	var errs []error
	for _, fn := range in.hooks.onUnknownKey {
		if err := fn(ctx, src.Name(), key); err != nil {
			errs = append(errs, err)
		}
	}
	if h, ok := src.(OnNoHandlerHook); ok {
		if err := h.OnNoHandler(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}

	switch {
	case len(errs) > 0:
		return errs[0]
	case len(in.hooks.onUnknownKey) > 0:
		return nil
	}
	logger.Warn(in.logger, "no message type bound to key",
		logger.With("source", src.Name()),
		logger.With("key", key),
	)
	return fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// handlePayloadError routes a decode failure to the unmarshal or validation
// hooks according to its stage.
func (in *Ingress) handlePayloadError(ctx context.Context, src Source, perr *PayloadError) error {
	var (
		errs   []error
		hooked bool
	)
	switch perr.Stage {
	case StageUnmarshal:
		hooked = len(in.hooks.onUnmarshalError) > 0
		for _, fn := range in.hooks.onUnmarshalError {
			if err := fn(ctx, src.Name(), perr.Key, perr.Err); err != nil {
				errs = append(errs, err)
			}
		}
		if h, ok := src.(OnUnmarshalErrorHook); ok {
			if err := h.OnUnmarshalError(ctx, perr.Key, perr.Err); err != nil {
				errs = append(errs, err)
			}
		}
	case StageValidate:
		hooked = len(in.hooks.onValidationError) > 0
		for _, fn := range in.hooks.onValidationError {
			if err := fn(ctx, src.Name(), perr.Key, perr.Err); err != nil {
				errs = append(errs, err)
			}
		}
		if h, ok := src.(OnValidationErrorHook); ok {
			if err := h.OnValidationError(ctx, perr.Key, perr.Err); err != nil {
				errs = append(errs, err)
			}
		}
	}

	switch {
	case len(errs) > 0:
		return errs[0]
	case hooked:
		return nil
	}
	return perr
}
