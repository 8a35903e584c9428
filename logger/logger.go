// Package logger defines the small structured logging surface used across
// the cqrs packages. Plug in any backend by implementing Logger; see the
// zaplogger package for a zap adapter.
package logger

// Field is a key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// With builds a Field.
func With(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger is a leveled, structured logger.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// The helpers below skip a nil Logger. They cannot see a nil pointer stored
// in a non-nil Logger, so adapters must not hand one out; zaplogger.Wrap(nil)
// returns a no-op logger.

// Debug logs through l if it is not nil.
func Debug(l Logger, msg string, fields ...Field) {
	if l != nil {
		l.Debug(msg, fields...)
	}
}

// Info logs through l if it is not nil.
func Info(l Logger, msg string, fields ...Field) {
	if l != nil {
		l.Info(msg, fields...)
	}
}

// Warn logs through l if it is not nil.
func Warn(l Logger, msg string, fields ...Field) {
	if l != nil {
		l.Warn(msg, fields...)
	}
}

// Error logs through l if it is not nil.
func Error(l Logger, msg string, fields ...Field) {
	if l != nil {
		l.Error(msg, fields...)
	}
}
