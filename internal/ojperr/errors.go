// Package ojperr defines the error kinds OJP's core must distinguish
// and how each translates into a gRPC status plus a structured
// trailer the client-side driver can parse into a SQL exception.
package ojperr

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

// Trailer is the structured payload translated errors attach to a gRPC
// status, carrying named fields instead of a flattened message string.
type Trailer map[string]string

// ConfigError reports a malformed connection URL (after placeholder
// substitution) or a missing required property. Fatal to the affected
// session.
type ConfigError struct {
	Cause error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("ojp: configuration error: %v", e.Cause) }
func (e *ConfigError) Unwrap() error { return e.Cause }

func (e *ConfigError) ToTrailer() (codes.Code, Trailer) {
	return codes.InvalidArgument, Trailer{"ojp-error-kind": "config", "message": e.Error()}
}

// PoolTimeout reports that a connection borrow exceeded
// connectionTimeout. Reported to the client as a transient SQL
// condition, since retrying later (or against a different pool member)
// may succeed.
type PoolTimeout struct {
	ConnHash string
}

func (e *PoolTimeout) Error() string {
	return fmt.Sprintf("ojp: pool borrow timed out for connection hash %s", e.ConnHash)
}

func (e *PoolTimeout) ToTrailer() (codes.Code, Trailer) {
	return codes.DeadlineExceeded, Trailer{
		"ojp-error-kind": "pool-timeout",
		"sql-state":      "08001",
		"message":        e.Error(),
	}
}

// BackendSqlError wraps any error surfaced by the backend driver,
// preserving its vendor code and SQL state so the client-side driver can
// reconstruct an equivalent SQLException.
type BackendSqlError struct {
	SQLState   string
	VendorCode int
	Cause      error
}

func (e *BackendSqlError) Error() string {
	return fmt.Sprintf("ojp: backend sql error (state=%s, code=%d): %v", e.SQLState, e.VendorCode, e.Cause)
}
func (e *BackendSqlError) Unwrap() error { return e.Cause }

// IsConnectionFault reports whether the error's SQL state is in class
// "08" (connection exception). No caller in this repository consults it
// to evict a backend, and the dispatcher builds BackendSqlError values
// without a SQL state.
func (e *BackendSqlError) IsConnectionFault() bool {
	return len(e.SQLState) >= 2 && e.SQLState[:2] == "08"
}

func (e *BackendSqlError) ToTrailer() (codes.Code, Trailer) {
	return codes.Unknown, Trailer{
		"ojp-error-kind": "backend-sql",
		"sql-state":      e.SQLState,
		"vendor-code":    fmt.Sprintf("%d", e.VendorCode),
		"message":        e.Error(),
	}
}

// XaProtocolError reports an illegal XA state transition from the XA registry, using
// the standard XA resource-manager error codes.
type XaProtocolError struct {
	Code string // XAER_PROTO, XAER_NOTA, XAER_DUPID, XAER_INVAL
	Msg  string
}

func (e *XaProtocolError) Error() string { return fmt.Sprintf("ojp: %s: %s", e.Code, e.Msg) }

func (e *XaProtocolError) ToTrailer() (codes.Code, Trailer) {
	return codes.FailedPrecondition, Trailer{
		"ojp-error-kind": "xa-protocol",
		"xa-code":        e.Code,
		"message":        e.Error(),
	}
}

// ClusterRedirect is not an error condition — it tells the client to
// reconnect to a different peer — but it implements error so it can flow
// through the same dispatch return path as a genuine failure. The gRPC
// transport returns it like the other kinds: a codes.Unavailable status
// whose trailer carries the peer id and address, not a separate redirect
// frame.
type ClusterRedirect struct {
	PeerID  string
	Address string
}

func (e *ClusterRedirect) Error() string {
	return fmt.Sprintf("ojp: redirect to peer %s (%s)", e.PeerID, e.Address)
}

func (e *ClusterRedirect) ToTrailer() (codes.Code, Trailer) {
	return codes.Unavailable, Trailer{
		"ojp-error-kind": "cluster-redirect",
		"peer-id":        e.PeerID,
		"address":        e.Address,
	}
}

// InternalError wraps any unexpected condition. It is always logged
// with its full cause chain and never allowed to crash the process;
// the client only ever sees a generic backend failure.
type InternalError struct {
	Cause error
}

func (e *InternalError) Error() string { return fmt.Sprintf("ojp: internal error: %v", e.Cause) }
func (e *InternalError) Unwrap() error { return e.Cause }

func (e *InternalError) ToTrailer() (codes.Code, Trailer) {
	return codes.Internal, Trailer{"ojp-error-kind": "internal", "message": "internal backend failure"}
}

// Translatable is implemented by every ojperr type, letting the gRPC
// transport layer translate any of them uniformly.
type Translatable interface {
	error
	ToTrailer() (codes.Code, Trailer)
}

// Translate converts err into a gRPC code and trailer. Errors that do
// not implement Translatable are treated as InternalError, so an
// unexpected panic-recovered error never leaks internal detail to the
// client.
func Translate(err error) (codes.Code, Trailer) {
	if t, ok := err.(Translatable); ok {
		return t.ToTrailer()
	}
	return (&InternalError{Cause: err}).ToTrailer()
}
