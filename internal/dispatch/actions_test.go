package dispatch

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ojp-io/ojp/api/ojppb"
	"github.com/ojp-io/ojp/internal/backend"
	"github.com/ojp-io/ojp/internal/connpool"
	"github.com/ojp-io/ojp/internal/dsconfig"
	"github.com/ojp-io/ojp/internal/providerreg"
	"github.com/ojp-io/ojp/internal/session"
	"github.com/ojp-io/ojp/internal/xapool"
	"github.com/ojp-io/ojp/internal/xaregistry"
)

// fakeDriver backs every dispatch action test with an in-memory
// database/sql driver: a fixed one-row, one-column result set for any
// query, and an affected-row count of 1 for any statement.
type fakeDriver struct{}

func (fakeDriver) Open(name string) (driver.Conn, error) { return &fakeConn{}, nil }

type fakeConn struct{}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *fakeConn) Close() error                              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)                  { return fakeTx{}, nil }

func (c *fakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return &fakeRows{col: "value", rows: [][]driver.Value{{"row1"}, {"row2"}}}, nil
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return driver.RowsAffected(1), nil
}

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type fakeRows struct {
	col string
	rows [][]driver.Value
	pos  int
}

func (r *fakeRows) Columns() []string { return []string{r.col} }
func (r *fakeRows) Close() error      { return nil }
func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

func newTestActionContext(t *testing.T) *ActionContext {
	t.Helper()
	name := "dispatch-fake-" + t.Name()
	sql.Register(name, fakeDriver{})

	reg := providerreg.New("")
	require.NoError(t, reg.Discover(context.Background()))

	dialers := map[string]connpool.Dialer{
		"postgresql": func(dsn string) (*sql.DB, error) { return sql.Open(name, dsn) },
	}
	pool := connpool.NewManager(reg, dialers)
	resolver := dsconfig.New(dsconfig.Defaults{
		PoolEnabled:       true,
		MaximumPoolSize:   5,
		IdleTimeoutMS:     600000,
		MaxLifetimeMS:     1800000,
		ConnectionTimeout: 5000,
	})
	sessions := session.NewManager(pool, resolver, time.Hour, time.Hour)

	return &ActionContext{
		Providers:  reg,
		DSConfig:   resolver,
		ConnPool:   pool,
		XAPool:     xapool.NewManager(reg),
		XARegistry: xaregistry.NewRegistries(),
		Sessions:   sessions,
		Cluster:    nil,
	}
}

func newTestXidKey(t *testing.T) xaregistry.XidKey {
	t.Helper()
	return xaregistry.NewXidKey(1, []byte("gtrid-"+t.Name()), []byte("bqual"))
}

func newFakeXaSession(t *testing.T) *xapool.Session {
	t.Helper()
	name := "dispatch-xa-fake-" + t.Name()
	sql.Register(name, fakeDriver{})
	db, err := sql.Open(name, "")
	require.NoError(t, err)
	sc, err := db.Conn(context.Background())
	require.NoError(t, err)
	return xapool.NewSession(backend.NewConn("h", "postgresql", sc), "postgresql")
}

func connectedSession(t *testing.T, ac *ActionContext) string {
	t.Helper()
	s, err := ac.Sessions.Connect(context.Background(), session.ConnectRequest{
		RawURL:     "jdbc:ojp[localhost:1059]_jdbc:postgresql://backend-host/mydb",
		Properties: map[string]string{"user": "alice"},
	})
	require.NoError(t, err)
	return s.UUID
}

func TestConnectAction_ReturnsSessionUUID(t *testing.T) {
	ac := newTestActionContext(t)
	resp, err := ConnectAction{}.Invoke(context.Background(), ac, &Request{
		Kind: KindConnect,
		Payload: &ojppb.ConnectRequest{
			URL:        "jdbc:ojp[localhost:1059]_jdbc:postgresql://backend-host/mydb",
			Properties: map[string]string{"user": "alice"},
		},
	})
	require.NoError(t, err)
	connResp := resp.Payload.(*ojppb.ConnectResponse)
	assert.NotEmpty(t, connResp.SessionUUID)
}

func TestExecuteQueryAction_ReturnsColumnsAndRows(t *testing.T) {
	ac := newTestActionContext(t)
	uuid := connectedSession(t, ac)

	resp, err := ExecuteQueryAction{}.Invoke(context.Background(), ac, &Request{
		Kind:        KindExecuteQuery,
		SessionUUID: uuid,
		Payload:     &ojppb.ExecuteQueryRequest{SessionUUID: uuid, SQL: "SELECT value FROM t"},
	})
	require.NoError(t, err)
	qr := resp.Payload.(*ojppb.ExecuteQueryResponse)
	assert.Equal(t, []string{"value"}, qr.Columns)
	assert.Len(t, qr.Rows, 2)
}

func TestExecuteUpdateAction_ReturnsRowsAffected(t *testing.T) {
	ac := newTestActionContext(t)
	uuid := connectedSession(t, ac)

	resp, err := ExecuteUpdateAction{}.Invoke(context.Background(), ac, &Request{
		Kind:        KindExecuteUpdate,
		SessionUUID: uuid,
		Payload:     &ojppb.ExecuteUpdateRequest{SessionUUID: uuid, SQL: "UPDATE t SET x = 1"},
	})
	require.NoError(t, err)
	ur := resp.Payload.(*ojppb.ExecuteUpdateResponse)
	assert.Equal(t, int64(1), ur.RowsAffected)
}

func TestPrepareThenExecute_OpensQueryCursor(t *testing.T) {
	ac := newTestActionContext(t)
	uuid := connectedSession(t, ac)

	prepResp, err := PrepareAction{}.Invoke(context.Background(), ac, &Request{
		Payload: &ojppb.PrepareRequest{SessionUUID: uuid, SQL: "SELECT value FROM t"},
	})
	require.NoError(t, err)
	stmtID := prepResp.Payload.(*ojppb.PrepareResponse).StatementID
	assert.NotEmpty(t, stmtID)

	execResp, err := ExecuteAction{}.Invoke(context.Background(), ac, &Request{
		Payload: &ojppb.ExecuteRequest{SessionUUID: uuid, StatementID: stmtID},
	})
	require.NoError(t, err)
	er := execResp.Payload.(*ojppb.ExecuteResponse)
	assert.True(t, er.IsResultSet)
	assert.NotEmpty(t, er.CursorID)

	fetchResp, err := FetchAction{}.Invoke(context.Background(), ac, &Request{
		Payload: &ojppb.FetchRequest{SessionUUID: uuid, CursorID: er.CursorID, MaxRows: 10},
	})
	require.NoError(t, err)
	fr := fetchResp.Payload.(*ojppb.FetchResponse)
	assert.Len(t, fr.Rows, 2)
	assert.False(t, fr.HasMore)
}

func TestPrepareThenExecute_UpdateStatementReturnsRowsAffected(t *testing.T) {
	ac := newTestActionContext(t)
	uuid := connectedSession(t, ac)

	prepResp, err := PrepareAction{}.Invoke(context.Background(), ac, &Request{
		Payload: &ojppb.PrepareRequest{SessionUUID: uuid, SQL: "UPDATE t SET x = 1"},
	})
	require.NoError(t, err)
	stmtID := prepResp.Payload.(*ojppb.PrepareResponse).StatementID

	execResp, err := ExecuteAction{}.Invoke(context.Background(), ac, &Request{
		Payload: &ojppb.ExecuteRequest{SessionUUID: uuid, StatementID: stmtID},
	})
	require.NoError(t, err)
	er := execResp.Payload.(*ojppb.ExecuteResponse)
	assert.False(t, er.IsResultSet)
	assert.Equal(t, int64(1), er.RowsAffected)
}

func TestFetch_UnknownCursorFails(t *testing.T) {
	ac := newTestActionContext(t)
	uuid := connectedSession(t, ac)

	_, err := FetchAction{}.Invoke(context.Background(), ac, &Request{
		Payload: &ojppb.FetchRequest{SessionUUID: uuid, CursorID: "bogus", MaxRows: 10},
	})
	assert.Error(t, err)
}

func TestSetSavepointThenCommit_RoundTrips(t *testing.T) {
	ac := newTestActionContext(t)
	uuid := connectedSession(t, ac)

	_, err := ExecuteUpdateAction{}.Invoke(context.Background(), ac, &Request{
		Payload: &ojppb.ExecuteUpdateRequest{SessionUUID: uuid, SQL: "UPDATE t SET x = 1"},
	})
	require.NoError(t, err)

	_, err = SetSavepointAction{}.Invoke(context.Background(), ac, &Request{
		Payload: &ojppb.SetSavepointRequest{SessionUUID: uuid, Name: "sp1"},
	})
	require.NoError(t, err)

	_, err = ReleaseSavepointAction{}.Invoke(context.Background(), ac, &Request{
		Payload: &ojppb.ReleaseSavepointRequest{SessionUUID: uuid, Name: "sp1"},
	})
	require.NoError(t, err)

	_, err = CommitAction{}.Invoke(context.Background(), ac, &Request{
		Payload: &ojppb.CommitRequest{SessionUUID: uuid},
	})
	require.NoError(t, err)
}

func TestReleaseSavepoint_WithoutOpenTxFails(t *testing.T) {
	ac := newTestActionContext(t)
	uuid := connectedSession(t, ac)

	_, err := ReleaseSavepointAction{}.Invoke(context.Background(), ac, &Request{
		Payload: &ojppb.ReleaseSavepointRequest{SessionUUID: uuid, Name: "sp1"},
	})
	assert.Error(t, err)
}

func TestCreateLobThenReadLob_RoundTrips(t *testing.T) {
	ac := newTestActionContext(t)
	uuid := connectedSession(t, ac)

	chunks := make(chan []byte, 2)
	chunks <- []byte("hello ")
	chunks <- []byte("world")
	close(chunks)

	resp, err := CreateLobAction{}.Stream(context.Background(), ac, &Request{
		Payload: &ojppb.CreateLobChunk{SessionUUID: uuid},
	}, chunks)
	require.NoError(t, err)
	created := resp.Payload.(*ojppb.CreateLobResponse)
	assert.Equal(t, int64(11), created.TotalBytes)

	readResp, err := ReadLobAction{}.Invoke(context.Background(), ac, &Request{
		Payload: &ojppb.ReadLobRequest{SessionUUID: uuid, LobID: created.LobID},
	})
	require.NoError(t, err)
	rr := readResp.Payload.(*ojppb.ReadLobResponse)
	assert.Equal(t, "hello world", string(rr.Data))
}

func TestXACommitAction_UnknownXidTranslatesToProtocolError(t *testing.T) {
	ac := newTestActionContext(t)
	uuid := connectedSession(t, ac)

	xid := ojppb.Xid{FormatID: 1, GlobalTransactionID: []byte("gtrid"), BranchQualifier: []byte("bqual")}

	_, err := XACommitAction{}.Invoke(context.Background(), ac, &Request{
		Payload: &ojppb.XaCommitRequest{SessionUUID: uuid, Xid: xid, OnePhase: false},
	})
	require.Error(t, err)
	xaErr, ok := err.(interface{ Error() string })
	require.True(t, ok)
	assert.Contains(t, xaErr.Error(), "XAER_NOTA")
}
