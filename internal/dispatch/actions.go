package dispatch

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ojp-io/ojp/api/ojppb"
	"github.com/ojp-io/ojp/internal/db"
	"github.com/ojp-io/ojp/internal/dsconfig"
	"github.com/ojp-io/ojp/internal/ojperr"
	"github.com/ojp-io/ojp/internal/session"
	"github.com/ojp-io/ojp/internal/xaregistry"
)

func payload[T any](req *Request) (T, error) {
	var zero T
	v, ok := req.Payload.(T)
	if !ok {
		return zero, fmt.Errorf("dispatch: unexpected payload type %T for kind %s", req.Payload, req.Kind)
	}
	return v, nil
}

func toArgs(values []ojppb.Value) []any {
	args := make([]any, len(values))
	for i, v := range values {
		switch {
		case v.IsNull:
			args[i] = nil
		case v.BytesValue != nil:
			args[i] = v.BytesValue
		case v.StringValue != "":
			args[i] = v.StringValue
		case v.BoolValue:
			args[i] = v.BoolValue
		case v.DoubleValue != 0:
			args[i] = v.DoubleValue
		default:
			args[i] = v.IntValue
		}
	}
	return args
}

func fromXid(x ojppb.Xid) xaregistry.XidKey {
	return xaregistry.NewXidKey(x.FormatID, x.GlobalTransactionID, x.BranchQualifier)
}

// ConnectAction resolves a client's connection URL into a new Session.
type ConnectAction struct{}

func (ConnectAction) Kind() ActionKind { return KindConnect }

func (ConnectAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.ConnectRequest](req)
	if err != nil {
		return nil, err
	}
	s, err := ac.Sessions.Connect(ctx, session.ConnectRequest{RawURL: p.URL, Properties: p.Properties})
	if err != nil {
		return nil, &ojperr.ConfigError{Cause: err}
	}
	return &Response{Payload: &ojppb.ConnectResponse{SessionUUID: s.UUID}}, nil
}

// CloseAction ends a session.
type CloseAction struct{}

func (CloseAction) Kind() ActionKind { return KindClose }

func (CloseAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.CloseRequest](req)
	if err != nil {
		return nil, err
	}
	if err := ac.Sessions.Close(ctx, p.SessionUUID); err != nil {
		return nil, &ojperr.InternalError{Cause: err}
	}
	return &Response{Payload: &ojppb.CloseResponse{}}, nil
}

func acquireSession(ctx context.Context, ac *ActionContext, uuid string) (*session.Session, error) {
	s, err := ac.Sessions.Acquire(ctx, uuid)
	if err != nil {
		if err == session.ErrNotFound {
			return nil, &ojperr.ConfigError{Cause: err}
		}
		return nil, &ojperr.PoolTimeout{}
	}
	return s, nil
}

// acquireExecutor returns the executor a plain statement should run
// against (Session.Executor): the pinned XA backend session if one is
// bound, otherwise the session's open local transaction if setSavepoint
// has already started one, otherwise its bare connection.
func acquireExecutor(ctx context.Context, ac *ActionContext, uuid string) (db.Executor, error) {
	s, err := acquireSession(ctx, ac, uuid)
	if err != nil {
		return nil, err
	}
	return s.Executor(), nil
}

// PrepareAction registers SQL text against a session for repeated
// execution via ExecuteAction.
type PrepareAction struct{}

func (PrepareAction) Kind() ActionKind { return KindPrepare }

func (PrepareAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.PrepareRequest](req)
	if err != nil {
		return nil, err
	}
	s, err := acquireSession(ctx, ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	id := s.PrepareStatement(p.SQL)
	return &Response{Payload: &ojppb.PrepareResponse{StatementID: id}}, nil
}

// isQueryText is a best-effort classifier for whether prepared SQL text
// returns rows, since the wire protocol does not tag statements with a
// kind up front. A leading SELECT or WITH is treated as a query; the
// client's own driver already knows which it sent and this only feeds
// ExecuteAction's branch between a cursor and an update count.
func isQueryText(sql string) bool {
	trimmed := strings.TrimSpace(sql)
	upper := strings.ToUpper(trimmed)
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

// ExecuteAction runs a previously prepared statement, opening a
// server-side cursor for a query or returning an update count
// otherwise.
type ExecuteAction struct{}

func (ExecuteAction) Kind() ActionKind { return KindExecute }

func (ExecuteAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.ExecuteRequest](req)
	if err != nil {
		return nil, err
	}
	s, err := acquireSession(ctx, ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	sqlText, err := s.Statement(p.StatementID)
	if err != nil {
		return nil, &ojperr.ConfigError{Cause: err}
	}
	exec := s.Executor()
	args := toArgs(p.Params)

	if !isQueryText(sqlText) {
		res, err := exec.Exec(ctx, sqlText, args...)
		if err != nil {
			return nil, &ojperr.BackendSqlError{Cause: err}
		}
		return &Response{Payload: &ojppb.ExecuteResponse{RowsAffected: res.RowsAffected()}}, nil
	}

	rows, err := exec.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, &ojperr.BackendSqlError{Cause: err}
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, &ojperr.BackendSqlError{Cause: err}
	}
	cursorID := s.OpenCursor(rows, cols)
	return &Response{Payload: &ojppb.ExecuteResponse{IsResultSet: true, Columns: cols, CursorID: cursorID}}, nil
}

// FetchAction pages through a cursor opened by ExecuteAction.
// ExecuteQueryAction returns its rows inline and opens no cursor.
type FetchAction struct{}

func (FetchAction) Kind() ActionKind { return KindFetch }

func (FetchAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.FetchRequest](req)
	if err != nil {
		return nil, err
	}
	s, err := acquireSession(ctx, ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	maxRows := int(p.MaxRows)
	if maxRows <= 0 {
		maxRows = 1
	}
	rawRows, _, hasMore, err := s.FetchRows(p.CursorID, maxRows)
	if err != nil {
		return nil, &ojperr.ConfigError{Cause: err}
	}
	resp := &ojppb.FetchResponse{HasMore: hasMore}
	for _, raw := range rawRows {
		row := ojppb.Row{}
		for _, c := range raw {
			row.Values = append(row.Values, toValue(c))
		}
		resp.Rows = append(resp.Rows, row)
	}
	return &Response{Payload: resp}, nil
}

// CreateLobAction assembles a client-streamed LOB upload into a single
// in-session handle, readable afterward via ReadLobAction.
type CreateLobAction struct{}

func (CreateLobAction) Kind() ActionKind { return KindCreateLob }

func (CreateLobAction) Stream(ctx context.Context, ac *ActionContext, req *Request, chunks <-chan []byte) (*Response, error) {
	p, err := payload[*ojppb.CreateLobChunk](req)
	if err != nil {
		return nil, err
	}
	s, err := acquireSession(ctx, ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	var buf []byte
	for chunk := range chunks {
		buf = append(buf, chunk...)
	}
	id := s.CreateLob(buf)
	return &Response{Payload: &ojppb.CreateLobResponse{LobID: id, TotalBytes: int64(len(buf))}}, nil
}

// ReadLobAction reads a previously created LOB's byte range back.
type ReadLobAction struct{}

func (ReadLobAction) Kind() ActionKind { return KindReadLob }

func (ReadLobAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.ReadLobRequest](req)
	if err != nil {
		return nil, err
	}
	s, err := acquireSession(ctx, ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	data, err := s.ReadLob(p.LobID, p.Offset, p.Length)
	if err != nil {
		return nil, &ojperr.ConfigError{Cause: err}
	}
	return &Response{Payload: &ojppb.ReadLobResponse{Data: data}}, nil
}

// ExecuteQueryAction runs a query and returns its result set.
type ExecuteQueryAction struct{}

func (ExecuteQueryAction) Kind() ActionKind { return KindExecuteQuery }

func (ExecuteQueryAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.ExecuteQueryRequest](req)
	if err != nil {
		return nil, err
	}
	exec, err := acquireExecutor(ctx, ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}

	rows, err := exec.Query(ctx, p.SQL, toArgs(p.Params)...)
	if err != nil {
		return nil, &ojperr.BackendSqlError{Cause: err}
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return nil, &ojperr.BackendSqlError{Cause: err}
	}

	resp := &ojppb.ExecuteQueryResponse{Columns: colNames}
	for rows.Next() {
		cols := make([]any, len(colNames))
		colPtrs := make([]any, len(cols))
		for i := range cols {
			colPtrs[i] = &cols[i]
		}
		if err := rows.Scan(colPtrs...); err != nil {
			return nil, &ojperr.BackendSqlError{Cause: err}
		}
		row := ojppb.Row{}
		for _, c := range cols {
			row.Values = append(row.Values, toValue(c))
		}
		resp.Rows = append(resp.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &ojperr.BackendSqlError{Cause: err}
	}
	return &Response{Payload: resp}, nil
}

func toValue(v any) ojppb.Value {
	if v == nil {
		return ojppb.Value{IsNull: true}
	}
	switch t := v.(type) {
	case string:
		return ojppb.Value{StringValue: t}
	case int64:
		return ojppb.Value{IntValue: t}
	case float64:
		return ojppb.Value{DoubleValue: t}
	case bool:
		return ojppb.Value{BoolValue: t}
	case []byte:
		return ojppb.Value{BytesValue: t}
	default:
		return ojppb.Value{StringValue: fmt.Sprintf("%v", t)}
	}
}

// ExecuteUpdateAction runs a statement that does not return rows.
type ExecuteUpdateAction struct{}

func (ExecuteUpdateAction) Kind() ActionKind { return KindExecuteUpdate }

func (ExecuteUpdateAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.ExecuteUpdateRequest](req)
	if err != nil {
		return nil, err
	}
	exec, err := acquireExecutor(ctx, ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	res, err := exec.Exec(ctx, p.SQL, toArgs(p.Params)...)
	if err != nil {
		return nil, &ojperr.BackendSqlError{Cause: err}
	}
	return &Response{Payload: &ojppb.ExecuteUpdateResponse{RowsAffected: res.RowsAffected()}}, nil
}

// CommitAction commits the session's open local transaction, if
// setSavepoint ever started one, then releases the connection. A
// session that never opened a transaction has nothing to commit.
type CommitAction struct{}

func (CommitAction) Kind() ActionKind { return KindCommit }

func (CommitAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.CommitRequest](req)
	if err != nil {
		return nil, err
	}
	s, err := acquireSession(ctx, ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	if tx := s.OpenTx(); tx != nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, &ojperr.BackendSqlError{Cause: err}
		}
		s.EndTx()
	}
	if err := ac.Sessions.Release(ctx, p.SessionUUID, true); err != nil {
		return nil, &ojperr.InternalError{Cause: err}
	}
	return &Response{Payload: &ojppb.CommitResponse{}}, nil
}

// RollbackAction rolls back the session's open local transaction, if
// any, then releases the connection as unhealthy-neutral, discarding
// any in-flight statement state.
type RollbackAction struct{}

func (RollbackAction) Kind() ActionKind { return KindRollback }

func (RollbackAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.RollbackRequest](req)
	if err != nil {
		return nil, err
	}
	s, err := acquireSession(ctx, ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	if tx := s.OpenTx(); tx != nil {
		if err := tx.Rollback(ctx); err != nil {
			return nil, &ojperr.BackendSqlError{Cause: err}
		}
		s.EndTx()
	}
	if err := ac.Sessions.Release(ctx, p.SessionUUID, true); err != nil {
		return nil, &ojperr.InternalError{Cause: err}
	}
	return &Response{Payload: &ojppb.RollbackResponse{}}, nil
}

// xaContext looks up the session for a request's session UUID and
// returns it with the dsconfig used to borrow an XA-pinned backend
// session for it.
func xaContext(ac *ActionContext, uuid string) (*session.Session, *dsconfig.Configuration, error) {
	s, ok := ac.Sessions.Get(uuid)
	if !ok {
		return nil, nil, &ojperr.ConfigError{Cause: session.ErrNotFound}
	}
	return s, s.Config, nil
}

// XAStartAction associates the session with an XA branch, borrowing a
// pinned backend session from the XA pool on the initial (TMNOFLAGS) start and
// registering it with the XA registry.
type XAStartAction struct{}

func (XAStartAction) Kind() ActionKind { return KindXAStart }

func (XAStartAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.XaStartRequest](req)
	if err != nil {
		return nil, err
	}
	s, cfg, err := xaContext(ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	xid := fromXid(p.Xid)
	reg := ac.XARegistry.For(s.Hash)

	if p.Flags == 0 {
		xaSession, err := ac.XAPool.Borrow(ctx, s.Hash, map[string]string{"user": ""}, cfg)
		if err != nil {
			return nil, &ojperr.PoolTimeout{}
		}
		// Open the local transaction block the branch's eventual PREPARE
		// TRANSACTION (or a one-phase COMMIT/ROLLBACK) will act on.
		if _, err := xaSession.Conn.Exec(ctx, "BEGIN"); err != nil {
			ac.XAPool.Invalidate(s.Hash, xaSession, "begin failed")
			return nil, &ojperr.BackendSqlError{Cause: err}
		}
		if err := reg.RegisterExistingSession(xid, p.SessionUUID, xaSession); err != nil {
			ac.XAPool.Invalidate(s.Hash, xaSession, "duplicate xid")
			return nil, &ojperr.XaProtocolError{Code: "XAER_DUPID", Msg: err.Error()}
		}
		// Route the session's subsequent statements onto the pinned
		// backend session instead of its ordinary pooled connection, so
		// the SQL the branch runs lands on the same connection XA
		// commit/rollback will act on.
		s.BindXA(xaSession)
		return &Response{Payload: &ojppb.XaStartResponse{}}, nil
	}

	if err := reg.XaStart(xid, p.Flags); err != nil {
		return nil, translateXaErr(err)
	}
	return &Response{Payload: &ojppb.XaStartResponse{}}, nil
}

// XAEndAction dissociates the session from its current branch.
type XAEndAction struct{}

func (XAEndAction) Kind() ActionKind { return KindXAEnd }

func (XAEndAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.XaEndRequest](req)
	if err != nil {
		return nil, err
	}
	s, _, err := xaContext(ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	if err := ac.XARegistry.For(s.Hash).XaEnd(fromXid(p.Xid), p.Flags); err != nil {
		return nil, translateXaErr(err)
	}
	return &Response{Payload: &ojppb.XaEndResponse{}}, nil
}

// XAPrepareAction votes on phase one of two-phase commit.
type XAPrepareAction struct{}

func (XAPrepareAction) Kind() ActionKind { return KindXAPrepare }

func (XAPrepareAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.XaPrepareRequest](req)
	if err != nil {
		return nil, err
	}
	s, _, err := xaContext(ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	vote, err := ac.XARegistry.For(s.Hash).XaPrepare(ctx, fromXid(p.Xid))
	if err != nil {
		return nil, translateXaErr(err)
	}
	return &Response{Payload: &ojppb.XaPrepareResponse{Vote: int32(vote)}}, nil
}

// XACommitAction completes a branch and releases its pinned session
// back to the XA pool.
type XACommitAction struct{}

func (XACommitAction) Kind() ActionKind { return KindXACommit }

func (XACommitAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.XaCommitRequest](req)
	if err != nil {
		return nil, err
	}
	s, _, err := xaContext(ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	xaSession, err := ac.XARegistry.For(s.Hash).XaCommit(ctx, fromXid(p.Xid), p.OnePhase)
	if err != nil {
		return nil, translateXaErr(err)
	}
	ac.XAPool.Release(s.Hash, xaSession, true)
	s.UnbindXA()
	return &Response{Payload: &ojppb.XaCommitResponse{}}, nil
}

// XARollbackAction aborts a branch and releases its pinned session back
// to the XA pool.
type XARollbackAction struct{}

func (XARollbackAction) Kind() ActionKind { return KindXARollback }

func (XARollbackAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.XaRollbackRequest](req)
	if err != nil {
		return nil, err
	}
	s, _, err := xaContext(ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	xaSession, err := ac.XARegistry.For(s.Hash).XaRollback(ctx, fromXid(p.Xid))
	if err != nil {
		return nil, translateXaErr(err)
	}
	ac.XAPool.Release(s.Hash, xaSession, true)
	s.UnbindXA()
	return &Response{Payload: &ojppb.XaRollbackResponse{}}, nil
}

// XAForgetAction discards bookkeeping for a heuristically completed
// branch.
type XAForgetAction struct{}

func (XAForgetAction) Kind() ActionKind { return KindXAForget }

func (XAForgetAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.XaForgetRequest](req)
	if err != nil {
		return nil, err
	}
	s, _, err := xaContext(ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	if err := ac.XARegistry.For(s.Hash).XaForget(fromXid(p.Xid)); err != nil {
		return nil, translateXaErr(err)
	}
	return &Response{Payload: &ojppb.XaForgetResponse{}}, nil
}

// XARecoverAction lists branches left PREPARED against the session's
// backend: the union of this node's in-memory registry (branches
// prepared since the last restart) and a live query of the backend's
// own prepared-transaction catalog (branches a prior process instance
// prepared and never completed), so a transaction manager scanning
// after this node restarted still finds them.
type XARecoverAction struct{}

func (XARecoverAction) Kind() ActionKind { return KindXARecover }

func (XARecoverAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.XaRecoverRequest](req)
	if err != nil {
		return nil, err
	}
	s, cfg, err := xaContext(ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}

	xids := ac.XARegistry.For(s.Hash).XaRecover()

	xaSession, err := ac.XAPool.Borrow(ctx, s.Hash, map[string]string{"user": ""}, cfg)
	if err != nil {
		return nil, &ojperr.PoolTimeout{}
	}
	backendXids, err := xaregistry.RecoverFromBackend(ctx, xaSession.Conn)
	ac.XAPool.Release(s.Hash, xaSession, err == nil)
	if err != nil {
		return nil, &ojperr.BackendSqlError{Cause: err}
	}

	seen := make(map[xaregistry.XidKey]bool, len(xids)+len(backendXids))
	union := make([]xaregistry.XidKey, 0, len(xids)+len(backendXids))
	for _, xid := range append(xids, backendXids...) {
		if !seen[xid] {
			seen[xid] = true
			union = append(union, xid)
		}
	}

	resp := &ojppb.XaRecoverResponse{Xids: make([]ojppb.Xid, len(union))}
	for i, xid := range union {
		fid, _ := base64.StdEncoding.DecodeString(xid.FormatID)
		gtrid, _ := base64.StdEncoding.DecodeString(xid.GlobalTxnID)
		bqual, _ := base64.StdEncoding.DecodeString(xid.BranchQual)
		var formatID int32
		if len(fid) == 4 {
			formatID = int32(uint32(fid[0])<<24 | uint32(fid[1])<<16 | uint32(fid[2])<<8 | uint32(fid[3]))
		}
		resp.Xids[i] = ojppb.Xid{FormatID: formatID, GlobalTransactionID: gtrid, BranchQualifier: bqual}
	}
	return &Response{Payload: resp}, nil
}

func translateXaErr(err error) error {
	switch err {
	case xaregistry.ErrNoEntry:
		return &ojperr.XaProtocolError{Code: "XAER_NOTA", Msg: err.Error()}
	case xaregistry.ErrProtocol:
		return &ojperr.XaProtocolError{Code: "XAER_PROTO", Msg: err.Error()}
	case xaregistry.ErrDuplicateXid:
		return &ojperr.XaProtocolError{Code: "XAER_DUPID", Msg: err.Error()}
	default:
		// Anything else reaching here is a failure of the SQL the
		// registry issued against the backend (PREPARE TRANSACTION,
		// COMMIT PREPARED, ROLLBACK PREPARED, or a plain COMMIT/ROLLBACK),
		// not a protocol violation.
		return &ojperr.BackendSqlError{Cause: err}
	}
}

// SetSavepointAction sets a savepoint on the session's local
// transaction, lazily starting one on the bound connection if the
// client has not already begun one.
type SetSavepointAction struct{}

func (SetSavepointAction) Kind() ActionKind { return KindSetSavepoint }

func (SetSavepointAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.SetSavepointRequest](req)
	if err != nil {
		return nil, err
	}
	s, err := acquireSession(ctx, ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	tx, err := s.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return nil, &ojperr.BackendSqlError{Cause: err}
	}
	if err := tx.Savepoint(ctx, p.Name); err != nil {
		return nil, &ojperr.BackendSqlError{Cause: err}
	}
	return &Response{Payload: &ojppb.SetSavepointResponse{}}, nil
}

// ReleaseSavepointAction releases a previously set savepoint. It
// requires a transaction already be open; releasing a savepoint that
// was never set is a protocol error from the client driver.
type ReleaseSavepointAction struct{}

func (ReleaseSavepointAction) Kind() ActionKind { return KindReleaseSavepoint }

func (ReleaseSavepointAction) Invoke(ctx context.Context, ac *ActionContext, req *Request) (*Response, error) {
	p, err := payload[*ojppb.ReleaseSavepointRequest](req)
	if err != nil {
		return nil, err
	}
	s, err := acquireSession(ctx, ac, p.SessionUUID)
	if err != nil {
		return nil, err
	}
	tx := s.OpenTx()
	if tx == nil {
		return nil, &ojperr.InternalError{Cause: fmt.Errorf("session has no open transaction for releaseSavepoint")}
	}
	if err := tx.ReleaseSavepoint(ctx, p.Name); err != nil {
		return nil, &ojperr.BackendSqlError{Cause: err}
	}
	return &Response{Payload: &ojppb.ReleaseSavepointResponse{}}, nil
}

// All returns every built-in Action, for wiring into a Dispatcher.
func All() []Action {
	return []Action{
		ConnectAction{},
		CloseAction{},
		PrepareAction{},
		ExecuteAction{},
		FetchAction{},
		CreateLobAction{},
		ReadLobAction{},
		ExecuteQueryAction{},
		ExecuteUpdateAction{},
		CommitAction{},
		RollbackAction{},
		SetSavepointAction{},
		ReleaseSavepointAction{},
		XAStartAction{},
		XAEndAction{},
		XAPrepareAction{},
		XACommitAction{},
		XARollbackAction{},
		XAForgetAction{},
		XARecoverAction{},
	}
}
