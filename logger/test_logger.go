package logger

import "testing"

var _ Logger = Test{}

// Test is a Logger that writes through testing.T, so output only shows up
// for failing or verbose tests.
type Test struct{ t testing.TB }

// NewTest returns a Logger bound to t.
func NewTest(t testing.TB) Test {
	return Test{t: t}
}

func (l Test) Debug(msg string, fields ...Field) { l.log("debug", msg, fields) }
func (l Test) Info(msg string, fields ...Field)  { l.log("info", msg, fields) }
func (l Test) Warn(msg string, fields ...Field)  { l.log("warn", msg, fields) }
func (l Test) Error(msg string, fields ...Field) { l.log("error", msg, fields) }

func (l Test) log(level, msg string, fields []Field) {
	l.t.Helper()
	l.t.Logf("[%s] %s %+v", level, msg, fields)
}
