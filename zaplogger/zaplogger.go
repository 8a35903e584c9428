// Package zaplogger adapts a *zap.Logger to logger.Logger.
package zaplogger

import (
	"go.uber.org/zap"

	"github.com/bjaus/cqrs/logger"
)

var _ logger.Logger = &Logger{}

// Logger is a zap.Logger usable wherever a logger.Logger is expected.
type Logger zap.Logger

// Wrap converts l without copying it. A nil l yields a no-op logger.
func Wrap(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return (*Logger)(l)
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...logger.Field) {
	(*zap.Logger)(l).Debug(msg, adaptFields(fields)...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...logger.Field) {
	(*zap.Logger)(l).Info(msg, adaptFields(fields)...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...logger.Field) {
	(*zap.Logger)(l).Warn(msg, adaptFields(fields)...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...logger.Field) {
	(*zap.Logger)(l).Error(msg, adaptFields(fields)...)
}

func adaptFields(fields []logger.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
