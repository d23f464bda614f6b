package logging

import (
	"sync"
	"time"
)

// ActionLog represents a single dispatched-action log entry: one line per
// RPC action handled by the dispatcher (connect, execute, xaCommit, ...).
type ActionLog struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	SessionID  string    `json:"session_id"`
	ConnHash   string    `json:"conn_hash,omitempty"`
	Action     string    `json:"action"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Redirected bool      `json:"redirected,omitempty"`
}

// RequestLogger writes one ActionLog entry per dispatched action.
type RequestLogger struct {
	mu      sync.Mutex
	enabled bool
}

var defaultRequestLogger = &RequestLogger{enabled: true}

// DefaultRequest returns the default action logger.
func DefaultRequest() *RequestLogger {
	return defaultRequestLogger
}

// SetEnabled toggles action logging on or off.
func (l *RequestLogger) SetEnabled(enabled bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// Log writes an action log entry to the operational logger at debug level
// on success and warn level on failure, so failures are visible without
// flooding normal operation logs.
func (l *RequestLogger) Log(entry ActionLog) {
	l.mu.Lock()
	enabled := l.enabled
	l.mu.Unlock()
	if !enabled {
		return
	}

	entry.Timestamp = time.Now()

	ev := Op().Debug()
	if !entry.Success {
		ev = Op().Warn()
	}
	ev = ev.Str("request_id", entry.RequestID).
		Str("session_id", entry.SessionID).
		Str("conn_hash", entry.ConnHash).
		Str("action", entry.Action).
		Int64("duration_ms", entry.DurationMs).
		Bool("redirected", entry.Redirected)
	if entry.Error != "" {
		ev = ev.Str("error", entry.Error)
	}
	ev.Msg("action")
}

// ErrString is a small helper so callers can build an ActionLog's error
// field from a possibly-nil error without repeating the nil check.
func ErrString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
