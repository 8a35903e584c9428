package cqrs

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/cqrs/logger"
)

type entry struct {
	level  string
	msg    string
	fields map[string]any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []entry
}

func (l *recordingLogger) Debug(msg string, fields ...logger.Field) { l.add("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...logger.Field)  { l.add("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...logger.Field)  { l.add("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...logger.Field) { l.add("error", msg, fields) }

func (l *recordingLogger) add(level, msg string, fields []logger.Field) {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	l.mu.Lock()
	l.entries = append(l.entries, entry{level: level, msg: msg, fields: m})
	l.mu.Unlock()
}

func TestLoggingMiddleware(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		log := &recordingLogger{}
		d := New(WithMiddleware(NewLoggingMiddleware(log)))
		require.NoError(t, d.RegisterHandlersIn(&orderHandlers{}))

		_, err := d.Send(context.Background(), createOrder{CustomerID: "1"})
		require.NoError(t, err)

		require.Len(t, log.entries, 2)
		assert.Equal(t, "debug", log.entries[0].level)
		assert.Equal(t, "dispatching message", log.entries[0].msg)
		assert.Equal(t, "command", log.entries[0].fields["role"])
		assert.Equal(t, "cqrs.createOrder", log.entries[0].fields["messageType"])

		assert.Equal(t, "info", log.entries[1].level)
		assert.Equal(t, "message dispatched", log.entries[1].msg)
		assert.Contains(t, log.entries[1].fields, "duration")
		assert.NotContains(t, log.entries[1].fields, "correlationId")
	})

	t.Run("failure", func(t *testing.T) {
		log := &recordingLogger{}
		d := New(WithMiddleware(NewLoggingMiddleware(log)))
		require.NoError(t, d.RegisterHandlersIn(&orderHandlers{}))

		_, err := d.Send(context.Background(), createOrder{})
		assert.Same(t, errBoom, err)

		require.Len(t, log.entries, 2)
		assert.Equal(t, "error", log.entries[1].level)
		assert.Equal(t, "message dispatch failed", log.entries[1].msg)
		assert.Equal(t, errBoom, log.entries[1].fields["error"])
	})

	t.Run("includes correlation id", func(t *testing.T) {
		log := &recordingLogger{}
		d := New(WithMiddleware(NewCorrelationMiddleware(), NewLoggingMiddleware(log)))
		require.NoError(t, d.RegisterHandlersIn(&orderHandlers{}))

		ctx := WithCorrelationID(context.Background(), "req-7")
		_, err := d.Send(ctx, getOrder{ID: "1"})
		require.NoError(t, err)

		for _, e := range log.entries {
			assert.Equal(t, "req-7", e.fields["correlationId"])
		}
	})

	t.Run("nil logger", func(t *testing.T) {
		mw := NewLoggingMiddleware(nil)
		mc := NewMiddlewareContext(RoleCommand, reflect.TypeFor[createOrder]())
		result, err := mw.Handle(context.Background(), createOrder{}, mc, func(context.Context, any) (any, error) {
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", result)
	})
}

func TestCorrelationMiddleware(t *testing.T) {
	mw := NewCorrelationMiddleware()

	capture := func(t *testing.T, ctx context.Context, mc *MiddlewareContext) string {
		t.Helper()
		var fromCtx string
		_, err := mw.Handle(ctx, createOrder{}, mc, func(ctx context.Context, msg any) (any, error) {
			fromCtx, _ = CorrelationID(ctx)
			return nil, nil
		})
		require.NoError(t, err)
		attr, ok := Value[string](mc, CorrelationIDKey)
		require.True(t, ok)
		assert.Equal(t, attr, fromCtx)
		return attr
	}

	t.Run("generates a uuid", func(t *testing.T) {
		mc := NewMiddlewareContext(RoleCommand, reflect.TypeFor[createOrder]())
		id := capture(t, context.Background(), mc)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
	})

	t.Run("generates distinct ids", func(t *testing.T) {
		a := capture(t, context.Background(), NewMiddlewareContext(RoleCommand, nil))
		b := capture(t, context.Background(), NewMiddlewareContext(RoleCommand, nil))
		assert.NotEqual(t, a, b)
	})

	t.Run("reuses context id", func(t *testing.T) {
		mc := NewMiddlewareContext(RoleCommand, nil)
		id := capture(t, WithCorrelationID(context.Background(), "from-ctx"), mc)
		assert.Equal(t, "from-ctx", id)
	})

	t.Run("attribute wins over context", func(t *testing.T) {
		mc := NewMiddlewareContext(RoleCommand, nil)
		mc.Set(CorrelationIDKey, "from-attr")
		id := capture(t, WithCorrelationID(context.Background(), "from-ctx"), mc)
		assert.Equal(t, "from-attr", id)
	})

	t.Run("empty context id is ignored", func(t *testing.T) {
		_, ok := CorrelationID(WithCorrelationID(context.Background(), ""))
		assert.False(t, ok)
	})

	t.Run("publish keeps one id across handlers", func(t *testing.T) {
		var ids []string
		d := New(WithMiddleware(mw))
		for range 2 {
			require.NoError(t, RegisterEventFunc(d, func(ctx context.Context, e orderCreated) error {
				id, _ := CorrelationID(ctx)
				ids = append(ids, id)
				return nil
			}))
		}

		require.NoError(t, d.Publish(context.Background(), orderCreated{}))
		require.Len(t, ids, 2)
		assert.Equal(t, ids[0], ids[1])
	})
}
