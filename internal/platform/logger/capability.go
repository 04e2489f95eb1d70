package logger

import (
	"context"
	"log/slog"
)

// Logger is the capability set the queue storage logs through.
// Implementations may route any of the levels wherever they like, or nowhere.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LogFunc writes one message with slog-style key/value arguments.
type LogFunc func(msg string, args ...any)

// Funcs is a Logger assembled from individual functions.
// A nil member silently drops messages of that level.
type Funcs struct {
	TraceFunc LogFunc
	DebugFunc LogFunc
	InfoFunc  LogFunc
	WarnFunc  LogFunc
	ErrorFunc LogFunc
}

var _ Logger = Funcs{}

func (f Funcs) Trace(msg string, args ...any) { call(f.TraceFunc, msg, args) }
func (f Funcs) Debug(msg string, args ...any) { call(f.DebugFunc, msg, args) }
func (f Funcs) Info(msg string, args ...any)  { call(f.InfoFunc, msg, args) }
func (f Funcs) Warn(msg string, args ...any)  { call(f.WarnFunc, msg, args) }
func (f Funcs) Error(msg string, args ...any) { call(f.ErrorFunc, msg, args) }

func call(fn LogFunc, msg string, args []any) {
	if fn != nil {
		fn(msg, args...)
	}
}

// Discard is a Logger that drops everything.
var Discard Logger = Funcs{}

// slogLogger adapts *slog.Logger to Logger, mapping Trace to LevelTrace.
type slogLogger struct {
	l *slog.Logger
}

// FromSlog wraps a *slog.Logger as a Logger. A nil logger falls back to slog.Default().
func FromSlog(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}

func (s slogLogger) Trace(msg string, args ...any) {
	s.l.Log(context.Background(), LevelTrace, msg, args...)
}
func (s slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }
