// Package logging provides the structured operational logger shared across
// the OJP server packages, and a per-action request log used to record one
// line per dispatched RPC action (connect, execute, xaCommit, ...).
package logging

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var opLogger atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)
	opLogger.Store(&l)
}

// Op returns the operational logger for daemon/infrastructure logs. This is
// separate from the RequestLogger (DefaultRequest), which logs individual
// dispatched actions.
func Op() *zerolog.Logger {
	return opLogger.Load()
}

// Init reconfigures the operational logger's format and level.
// format is "console" (human-readable, default) or "json".
// level is one of "debug", "info", "warn", "error".
func Init(format, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w zerolog.Logger
	switch format {
	case "json":
		w = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl)
	default:
		w = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
			With().Timestamp().Logger().Level(lvl)
	}
	opLogger.Store(&w)
}

// WithTrace returns the operational logger enriched with trace/span ids,
// for correlating a log line with an OpenTelemetry span.
func WithTrace(traceID, spanID string) zerolog.Logger {
	l := opLogger.Load()
	if traceID == "" {
		return *l
	}
	ctx := l.With().Str("trace_id", traceID)
	if spanID != "" {
		ctx = ctx.Str("span_id", spanID)
	}
	return ctx.Logger()
}
