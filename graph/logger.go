package graph

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards all log records. Enabled returns false so disabled
// logging skips message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the package logger. By default the graph produces no
// log output. Pass nil to restore the silent default. Safe for concurrent
// use.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

func logger() *slog.Logger { return loggerPtr.Load() }

// strict, when set, turns pass-validation failures into panics instead of
// skipped passes. Enabled in debug builds / tests via SetStrict.
var strict atomic.Bool

// SetStrict toggles panicking on programmer errors. With strict off the
// graph refuses to execute an offending pass and logs its name.
func SetStrict(v bool) { strict.Store(v) }
