package render3

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/raster"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for render3 and all its sub-packages.
// By default render3 produces no log output. Pass nil to restore the
// silent default.
//
// Log levels used by render3:
//   - [slog.LevelDebug]: internal diagnostics (pass schedules, barrier
//     plans, culling statistics)
//   - [slog.LevelInfo]: lifecycle events (viewport resize, device
//     selection)
//   - [slog.LevelWarn]: non-fatal issues (capability clamped off, culling
//     capacity exceeded)
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	graph.SetLogger(l)
	raster.SetLogger(l)
}

// Logger returns the current logger used by render3.
func Logger() *slog.Logger { return loggerPtr.Load() }
