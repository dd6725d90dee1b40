package dxcore

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/dxcore/config"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the default logger for dxcore and its sub-packages.
// By default, dxcore produces no log output. Devices created afterwards
// log through l unless WithLogger overrides it.
//
// SetLogger is safe for concurrent use. Pass nil to restore silence.
//
// Log levels used by dxcore:
//   - [slog.LevelDebug]: pipeline creation, implicit flushes, submissions
//   - [slog.LevelInfo]: config file found, effective configuration, state cache load/save
//   - [slog.LevelWarn]: corrupt or unwritable state cache, backend release errors
//
// Example:
//
//	dxcore.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	config.SetLogger(l)
}

// Logger returns the current default logger.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
