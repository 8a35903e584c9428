package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bjaus/cqrs/logger"
)

type entry struct {
	level  string
	msg    string
	fields []logger.Field
}

type recorder struct{ entries []entry }

func (r *recorder) Debug(msg string, f ...logger.Field) { r.add("debug", msg, f) }
func (r *recorder) Info(msg string, f ...logger.Field)  { r.add("info", msg, f) }
func (r *recorder) Warn(msg string, f ...logger.Field)  { r.add("warn", msg, f) }
func (r *recorder) Error(msg string, f ...logger.Field) { r.add("error", msg, f) }

func (r *recorder) add(level, msg string, f []logger.Field) {
	r.entries = append(r.entries, entry{level: level, msg: msg, fields: f})
}

func TestHelpers(t *testing.T) {
	t.Run("nil logger is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			logger.Debug(nil, "a")
			logger.Info(nil, "b")
			logger.Warn(nil, "c")
			logger.Error(nil, "d")
		})
	})

	t.Run("delegates with fields", func(t *testing.T) {
		r := &recorder{}
		logger.Debug(r, "one", logger.With("k", 1))
		logger.Info(r, "two")
		logger.Warn(r, "three")
		logger.Error(r, "four", logger.With("err", "boom"))

		assert.Equal(t, []entry{
			{level: "debug", msg: "one", fields: []logger.Field{{Key: "k", Value: 1}}},
			{level: "info", msg: "two"},
			{level: "warn", msg: "three"},
			{level: "error", msg: "four", fields: []logger.Field{{Key: "err", Value: "boom"}}},
		}, r.entries)
	})

	t.Run("test logger", func(t *testing.T) {
		l := logger.NewTest(t)
		assert.NotPanics(t, func() { l.Info("hello", logger.With("x", "y")) })
	})
}
