// Package e2e exercises whole scenarios across several components at
// once — connect through query through close, cross-node XA redirect,
// URL placeholder resolution — the way a real client session would,
// rather than one package's unit in isolation. It uses the same
// in-memory database/sql fake driver internal/dispatch's own tests use
// instead of a live Postgres process.
package e2e

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ojp-io/ojp/api/ojppb"
	"github.com/ojp-io/ojp/internal/cache"
	"github.com/ojp-io/ojp/internal/cluster"
	"github.com/ojp-io/ojp/internal/config"
	"github.com/ojp-io/ojp/internal/connpool"
	"github.com/ojp-io/ojp/internal/dispatch"
	"github.com/ojp-io/ojp/internal/dsconfig"
	"github.com/ojp-io/ojp/internal/providerreg"
	"github.com/ojp-io/ojp/internal/session"
	"github.com/ojp-io/ojp/internal/xapool"
	"github.com/ojp-io/ojp/internal/xaregistry"
)

// execLog records every statement text executed across every connection
// opened from one fakeDriver, so a test can assert the exact SQL a
// two-phase commit branch issued against its pinned backend session.
type execLog struct {
	mu    sync.Mutex
	stmts []string
}

func (l *execLog) record(q string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stmts = append(l.stmts, q)
}

func (l *execLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.stmts))
	copy(out, l.stmts)
	return out
}

type fakeDriver struct{ log *execLog }

func (d fakeDriver) Open(name string) (driver.Conn, error) { return &fakeConn{log: d.log}, nil }

type fakeConn struct{ log *execLog }

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *fakeConn) Close() error                              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)                  { return fakeTx{}, nil }

func (c *fakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return &fakeRows{col: "value", rows: [][]driver.Value{{int64(1)}}}, nil
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if c.log != nil {
		c.log.record(query)
	}
	return driver.RowsAffected(1), nil
}

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type fakeRows struct {
	col  string
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

// newHarness builds one Dispatcher wired over the fake driver, the same
// shape cmd/ojp-server assembles in production, over every built-in
// action so a scenario can exercise any of them. log records every
// statement text executed against any connection the harness opens.
func newHarness(t *testing.T) (*dispatch.Dispatcher, *dispatch.ActionContext, *execLog) {
	t.Helper()
	name := "e2e-fake-" + t.Name()
	log := &execLog{}
	sql.Register(name, fakeDriver{log: log})

	reg := providerreg.New("")
	require.NoError(t, reg.Discover(context.Background()))

	dialers := map[string]connpool.Dialer{
		"postgresql": func(dsn string) (*sql.DB, error) { return sql.Open(name, dsn) },
	}
	pool := connpool.NewManager(reg, dialers)
	resolver := dsconfig.New(dsconfig.Defaults{
		PoolEnabled:       true,
		MaximumPoolSize:   10,
		IdleTimeoutMS:     600000,
		MaxLifetimeMS:     1800000,
		ConnectionTimeout: 5000,
	})
	sessions := session.NewManager(pool, resolver, time.Hour, time.Hour)

	ac := &dispatch.ActionContext{
		Providers:  reg,
		DSConfig:   resolver,
		ConnPool:   pool,
		XAPool:     xapool.NewManager(reg),
		XARegistry: xaregistry.NewRegistries(),
		Sessions:   sessions,
	}

	d, err := dispatch.New(ac, dispatch.WorkerPoolConfig{WorkerCount: 4, QueueSize: 16, TaskTimeout: 5 * time.Second},
		dispatch.All()...,
	)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	return d, ac, log
}

// Scenario 1: connect, query, close — one session created, one backend
// borrowed and released, no XA registry entries left behind.
func TestScenario1_ConnectQueryClose(t *testing.T) {
	ctx := context.Background()
	d, ac, _ := newHarness(t)

	connResp, err := d.Dispatch(ctx, &dispatch.Request{
		Kind: dispatch.KindConnect,
		Payload: &ojppb.ConnectRequest{
			URL:        "jdbc:ojp[localhost:1059]_jdbc:postgresql://backend-host/mydb",
			Properties: map[string]string{"user": "alice"},
		},
	})
	require.NoError(t, err)
	uuid := connResp.Payload.(*ojppb.ConnectResponse).SessionUUID
	require.NotEmpty(t, uuid)

	queryResp, err := d.Dispatch(ctx, &dispatch.Request{
		Kind:        dispatch.KindExecuteQuery,
		SessionUUID: uuid,
		Payload:     &ojppb.ExecuteQueryRequest{SessionUUID: uuid, SQL: "SELECT 1"},
	})
	require.NoError(t, err)
	qr := queryResp.Payload.(*ojppb.ExecuteQueryResponse)
	assert.Len(t, qr.Rows, 1)

	s, ok := ac.Sessions.Get(uuid)
	require.True(t, ok)
	hash := s.Hash

	_, err = d.Dispatch(ctx, &dispatch.Request{
		Kind:        dispatch.KindClose,
		SessionUUID: uuid,
		Payload:     &ojppb.CloseRequest{SessionUUID: uuid},
	})
	require.NoError(t, err)

	_, ok = ac.Sessions.Get(uuid)
	assert.False(t, ok, "session should be forgotten after close")

	stats, ok := ac.ConnPool.Stats(hash)
	if ok {
		assert.Equal(t, 0, stats.Active, "no connection should remain checked out after close")
	}
	assert.Equal(t, 0, ac.XARegistry.For(hash).Len())
}

// Scenario 3 (adapted): a draining node never serves a fresh, non-XA-
// pinned session locally — it redirects to a healthy peer — but a
// session with a live XA branch against its hash is kept local
// regardless, so an in-flight distributed transaction never gets
// orphaned by a mid-transaction failover.
func TestScenario3_ClusterRedirectRespectsXAStickiness(t *testing.T) {
	ctx := context.Background()
	shared := cache.NewInMemoryCache()
	registries := xaregistry.NewRegistries()

	n1 := cluster.NewHealth("n1", "10.0.0.1:1059", shared, registries, time.Minute)
	n2 := cluster.NewHealth("n2", "10.0.0.2:1059", shared, registries, time.Minute)

	require.NoError(t, n1.PublishLocalState(ctx))
	require.NoError(t, n2.RefreshPeer(ctx, "n1"))

	require.NoError(t, n2.Drain(ctx))

	hash := connpool.Compute("jdbc:postgresql://backend-host/mydb", "alice", nil)

	hint, err := n2.OnSessionRequest(cluster.SessionInfo{SessionUUID: "s1", Hash: hash, XAPinned: false})
	require.NoError(t, err)
	require.NotNil(t, hint, "draining node must redirect a fresh session")
	assert.Equal(t, "n1", hint.PeerID)

	hint, err = n2.OnSessionRequest(cluster.SessionInfo{SessionUUID: "s2", Hash: hash, XAPinned: true})
	require.NoError(t, err)
	assert.Nil(t, hint, "a session with a pinned XA branch is never redirected out from under it")
}

// Scenario 4 (adapted): a demoted provider is skipped by Select until a
// Reload re-discovers it — the same fixed built-in pgx providers this
// module ships instead of a pluggable classpath, since OJP has exactly
// one STANDARD and one XA provider rather than a pluggable Hikari/DBCP
// choice.
func TestScenario4_DemotedProviderExcludedUntilReload(t *testing.T) {
	ctx := context.Background()
	reg := providerreg.New("")
	require.NoError(t, reg.Discover(ctx))

	_, err := reg.Select(providerreg.KindStandard)
	require.NoError(t, err)

	reg.Demote(providerreg.KindStandard, "postgresql")
	_, err = reg.Select(providerreg.KindStandard)
	assert.Error(t, err)

	require.NoError(t, reg.Reload(ctx))
	_, err = reg.Select(providerreg.KindStandard)
	assert.NoError(t, err)
}

// Scenario 5: an explicit property set resolves to exactly those values,
// with unset fields falling back to defaults.
func TestScenario5_ResolverAppliesExplicitOverridesAndDefaults(t *testing.T) {
	resolver := dsconfig.New(dsconfig.Defaults{
		PoolEnabled:       true,
		MaximumPoolSize:   10,
		MinimumIdle:       0,
		IdleTimeoutMS:     600000,
		MaxLifetimeMS:     1800000,
		ConnectionTimeout: 30000,
	})

	cfg := resolver.Resolve(map[string]string{
		"dataSourceName":    "myApp",
		"maximumPoolSize":   "50",
		"minimumIdle":       "10",
		"connectionTimeout": "15000",
	})

	assert.Equal(t, "myApp", cfg.DataSourceName)
	assert.Equal(t, 50, cfg.MaximumPoolSize)
	assert.Equal(t, 10, cfg.MinimumIdle)
	assert.Equal(t, 15000, cfg.ConnectionTimeout)
	assert.Equal(t, 600000, cfg.IdleTimeoutMS, "unset field falls back to default")
	assert.Equal(t, 1800000, cfg.MaxLifetimeMS, "unset field falls back to default")
}

// Scenario 6: a resolvable placeholder substitutes; an unresolvable one
// fails with a message naming the missing key.
func TestScenario6_URLPlaceholderSubstitution(t *testing.T) {
	url := "jdbc:postgresql://h:5432/db?sslrootcert=${ojp.server.sslrootcert}"

	resolved, err := config.SubstitutePlaceholders(url, map[string]string{
		"ojp.server.sslrootcert": "/certs/ca.pem",
	})
	require.NoError(t, err)
	assert.Equal(t, "jdbc:postgresql://h:5432/db?sslrootcert=/certs/ca.pem", resolved)

	_, err = config.SubstitutePlaceholders(url, map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ojp.server.sslrootcert")
}

// Scenario 2 (adapted): repeated sequential borrow/release against one
// connection hash never opens more physical connections than
// maximumPoolSize, even across many sequential sessions sharing the
// same identical pooling properties.
func TestScenario2_SequentialSessionsBoundedByMaximumPoolSize(t *testing.T) {
	ctx := context.Background()
	d, ac, _ := newHarness(t)

	var hash connpool.Hash
	for i := 0; i < 50; i++ {
		connResp, err := d.Dispatch(ctx, &dispatch.Request{
			Kind: dispatch.KindConnect,
			Payload: &ojppb.ConnectRequest{
				URL:        "jdbc:ojp[localhost:1059]_jdbc:postgresql://backend-host/mydb",
				Properties: map[string]string{"user": "alice"},
			},
		})
		require.NoError(t, err)
		uuid := connResp.Payload.(*ojppb.ConnectResponse).SessionUUID

		_, err = d.Dispatch(ctx, &dispatch.Request{
			Kind:        dispatch.KindExecuteQuery,
			SessionUUID: uuid,
			Payload:     &ojppb.ExecuteQueryRequest{SessionUUID: uuid, SQL: "SELECT 1"},
		})
		require.NoError(t, err)

		s, _ := ac.Sessions.Get(uuid)
		hash = s.Hash

		_, err = d.Dispatch(ctx, &dispatch.Request{
			Kind:        dispatch.KindClose,
			SessionUUID: uuid,
			Payload:     &ojppb.CloseRequest{SessionUUID: uuid},
		})
		require.NoError(t, err)
	}

	stats, ok := ac.ConnPool.Stats(hash)
	require.True(t, ok)
	assert.LessOrEqual(t, stats.Active+stats.Idle, 10)
}

// Scenario 7: an XA branch's statements run against the same pinned
// backend session its eventual two-phase commit acts on, and that
// commit issues real PREPARE TRANSACTION/COMMIT PREPARED SQL rather
// than only updating in-memory bookkeeping.
func TestScenario7_XABranchCommitsOverItsPinnedBackendSession(t *testing.T) {
	ctx := context.Background()
	d, ac, log := newHarness(t)

	connResp, err := d.Dispatch(ctx, &dispatch.Request{
		Kind: dispatch.KindConnect,
		Payload: &ojppb.ConnectRequest{
			URL:        "jdbc:ojp[localhost:1059]_jdbc:postgresql://backend-host/mydb",
			Properties: map[string]string{"user": "alice"},
		},
	})
	require.NoError(t, err)
	uuid := connResp.Payload.(*ojppb.ConnectResponse).SessionUUID

	xid := ojppb.Xid{FormatID: 1, GlobalTransactionID: []byte("gtrid-s7"), BranchQualifier: []byte("bqual")}

	_, err = d.Dispatch(ctx, &dispatch.Request{
		Kind:        dispatch.KindXAStart,
		SessionUUID: uuid,
		Payload:     &ojppb.XaStartRequest{SessionUUID: uuid, Xid: xid, Flags: 0},
	})
	require.NoError(t, err)

	s, ok := ac.Sessions.Get(uuid)
	require.True(t, ok)
	require.NotNil(t, s.XA(), "XAStart must bind a pinned XA backend session onto the client session")
	pinnedConn := s.XA().Conn

	_, err = d.Dispatch(ctx, &dispatch.Request{
		Kind:        dispatch.KindExecuteUpdate,
		SessionUUID: uuid,
		Payload:     &ojppb.ExecuteUpdateRequest{SessionUUID: uuid, SQL: "UPDATE accounts SET balance = balance - 1"},
	})
	require.NoError(t, err)
	assert.Same(t, pinnedConn, s.Executor(), "a plain statement inside the branch must run on the pinned XA connection")

	_, err = d.Dispatch(ctx, &dispatch.Request{
		Kind:        dispatch.KindXAEnd,
		SessionUUID: uuid,
		Payload:     &ojppb.XaEndRequest{SessionUUID: uuid, Xid: xid, Flags: xaregistry.TMSUCCESS},
	})
	require.NoError(t, err)

	prepResp, err := d.Dispatch(ctx, &dispatch.Request{
		Kind:        dispatch.KindXAPrepare,
		SessionUUID: uuid,
		Payload:     &ojppb.XaPrepareRequest{SessionUUID: uuid, Xid: xid},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(xaregistry.VoteOK), prepResp.Payload.(*ojppb.XaPrepareResponse).Vote)

	_, err = d.Dispatch(ctx, &dispatch.Request{
		Kind:        dispatch.KindXACommit,
		SessionUUID: uuid,
		Payload:     &ojppb.XaCommitRequest{SessionUUID: uuid, Xid: xid, OnePhase: false},
	})
	require.NoError(t, err)

	assert.Nil(t, s.XA(), "commit must unbind the pinned session from the client session")

	gid := xaregistry.NewXidKey(xid.FormatID, xid.GlobalTransactionID, xid.BranchQualifier).String()
	stmts := log.all()
	assert.Contains(t, stmts, "BEGIN")
	assert.Contains(t, stmts, "PREPARE TRANSACTION '"+gid+"'")
	assert.Contains(t, stmts, "COMMIT PREPARED '"+gid+"'")
}
