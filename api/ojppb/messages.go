// Package ojppb holds the Go message types OJP's wire protocol uses,
// hand-mirrored field-for-field from ojp.proto. They are plain structs
// marshaled by internal/rpccodec's gob-based codec rather than generated
// protobuf bindings — see ojp.proto's header comment.
package ojppb

// ConnectRequest opens a new session against a backend URL.
type ConnectRequest struct {
	URL        string
	Properties map[string]string
}

// ConnectResponse returns the new session's identifier.
type ConnectResponse struct {
	SessionUUID string
}

// CloseRequest ends a session, releasing any connection it holds.
type CloseRequest struct {
	SessionUUID string
}

// CloseResponse acknowledges a CloseRequest.
type CloseResponse struct{}

// Value is a single column or bind-parameter value. Exactly one of the
// typed fields is meaningful; IsNull takes precedence over all others.
type Value struct {
	IsNull      bool
	StringValue string
	IntValue    int64
	DoubleValue float64
	BoolValue   bool
	BytesValue  []byte
}

// Row is one result-set row.
type Row struct {
	Values []Value
}

// PrepareRequest registers SQL text against the session for repeated
// execution, returning a handle instead of re-sending the text each time.
type PrepareRequest struct {
	SessionUUID string
	SQL         string
}

// PrepareResponse carries the new statement's handle.
type PrepareResponse struct {
	StatementID string
}

// ExecuteRequest runs a previously prepared statement, opening a
// server-side cursor if it returns rows.
type ExecuteRequest struct {
	SessionUUID string
	StatementID string
	Params      []Value
}

// ExecuteResponse reports either an update count or a cursor to page
// through via FetchRequest, never both.
type ExecuteResponse struct {
	IsResultSet  bool
	Columns      []string
	CursorID     string
	RowsAffected int64
}

// FetchRequest pages through a cursor opened by ExecuteRequest.
// ExecuteQueryRequest returns its rows inline and opens no cursor.
type FetchRequest struct {
	SessionUUID string
	CursorID    string
	MaxRows     int32
}

// FetchResponse carries the next page of a cursor's rows.
type FetchResponse struct {
	Rows    []Row
	HasMore bool
}

// ReadLobRequest reads a previously created LOB back, by handle.
type ReadLobRequest struct {
	SessionUUID string
	LobID       string
	Offset      int64
	Length      int64
}

// ReadLobResponse carries the requested LOB byte range.
type ReadLobResponse struct {
	Data    []byte
	HasMore bool
}

// ExecuteQueryRequest runs a SQL query and expects a result set back.
type ExecuteQueryRequest struct {
	SessionUUID string
	SQL         string
	Params      []Value
}

// ExecuteQueryResponse carries a query's result set.
type ExecuteQueryResponse struct {
	Columns []string
	Rows    []Row
}

// ExecuteUpdateRequest runs a SQL statement that does not return rows.
type ExecuteUpdateRequest struct {
	SessionUUID string
	SQL         string
	Params      []Value
}

// ExecuteUpdateResponse reports how many rows an update affected.
type ExecuteUpdateResponse struct {
	RowsAffected int64
}

// CommitRequest commits the session's current local transaction.
type CommitRequest struct {
	SessionUUID string
}

// RollbackRequest rolls back the session's current local transaction.
type RollbackRequest struct {
	SessionUUID string
}

// SetSavepointRequest establishes a named savepoint.
type SetSavepointRequest struct {
	SessionUUID string
	Name        string
}

// ReleaseSavepointRequest releases a previously set savepoint.
type ReleaseSavepointRequest struct {
	SessionUUID string
	Name        string
}

// Xid is the wire form of an XA transaction identifier.
type Xid struct {
	FormatID            int32
	GlobalTransactionID []byte
	BranchQualifier     []byte
}

// XaStartRequest associates the calling session with an XA branch.
type XaStartRequest struct {
	SessionUUID string
	Xid         Xid
	Flags       int32
}

// XaEndRequest dissociates the calling session from an XA branch.
type XaEndRequest struct {
	SessionUUID string
	Xid         Xid
	Flags       int32
}

// XaPrepareRequest votes on phase one of two-phase commit.
type XaPrepareRequest struct {
	SessionUUID string
	Xid         Xid
}

// XaPrepareResponse carries the branch's prepare vote (XA_OK or
// XA_RDONLY, mirrored as small integers).
type XaPrepareResponse struct {
	Vote int32
}

// XaCommitRequest completes a branch, one-phase or two-phase.
type XaCommitRequest struct {
	SessionUUID string
	Xid         Xid
	OnePhase    bool
}

// XaRollbackRequest aborts a branch.
type XaRollbackRequest struct {
	SessionUUID string
	Xid         Xid
}

// XaForgetRequest discards bookkeeping for a heuristically completed
// branch.
type XaForgetRequest struct {
	SessionUUID string
	Xid         Xid
}

// XaRecoverRequest asks for the set of branches left PREPARED.
type XaRecoverRequest struct {
	SessionUUID string
	Flags       int32
}

// XaRecoverResponse lists recovered Xids.
type XaRecoverResponse struct {
	Xids []Xid
}

// CreateLobChunk is one chunk of a streamed LOB upload.
type CreateLobChunk struct {
	SessionUUID string
	Data        []byte
	Last        bool
}

// CreateLobResponse completes a LOB upload.
type CreateLobResponse struct {
	LobID      string
	TotalBytes int64
}

// RedirectHint tells the client to reconnect to a different cluster peer.
type RedirectHint struct {
	PeerID  string
	Address string
}

// SqlError carries a structured SQL error back to the client as a
// protocol-level error frame.
type SqlError struct {
	SQLState   string
	VendorCode int32
	Message    string
}
