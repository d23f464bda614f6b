package session

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ojp-io/ojp/internal/connpool"
	"github.com/ojp-io/ojp/internal/dsconfig"
	"github.com/ojp-io/ojp/internal/providerreg"
)

type fakeDriver struct{}

func (fakeDriver) Open(name string) (driver.Conn, error) { return fakeConn{}, nil }

type fakeConn struct{}

func (fakeConn) Prepare(query string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (fakeConn) Close() error                              { return nil }
func (fakeConn) Begin() (driver.Tx, error)                 { return nil, driver.ErrSkip }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	name := "session-fake-" + t.Name()
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
	return NewManager(pool, resolver, time.Hour, time.Hour)
}

func connectReq() ConnectRequest {
	return ConnectRequest{
		RawURL: "jdbc:ojp[localhost:1059]_jdbc:postgresql://backend-host/mydb",
		Properties: map[string]string{
			"user": "alice",
		},
	}
}

func TestConnect_RegistersRetrievableSession(t *testing.T) {
	m := newTestManager(t)
	defer m.Shutdown(context.Background())

	s, err := m.Connect(context.Background(), connectReq())
	require.NoError(t, err)
	assert.NotEmpty(t, s.UUID)
	assert.Equal(t, "jdbc:postgresql://backend-host/mydb", s.BackendURL)

	got, ok := m.Get(s.UUID)
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestConnect_MalformedURLFails(t *testing.T) {
	m := newTestManager(t)
	defer m.Shutdown(context.Background())

	_, err := m.Connect(context.Background(), ConnectRequest{RawURL: "not-a-valid-url"})
	assert.Error(t, err)
}

func TestAcquireRelease_BindsAndUnbindsConnection(t *testing.T) {
	m := newTestManager(t)
	defer m.Shutdown(context.Background())

	s, err := m.Connect(context.Background(), connectReq())
	require.NoError(t, err)

	acquired, err := m.Acquire(context.Background(), s.UUID)
	require.NoError(t, err)
	assert.NotNil(t, acquired.Conn())
	assert.True(t, acquired.HasBorrowedConn())

	require.NoError(t, m.Release(context.Background(), s.UUID, true))
	assert.False(t, s.HasBorrowedConn())
}

func TestAcquire_UnknownSessionFails(t *testing.T) {
	m := newTestManager(t)
	defer m.Shutdown(context.Background())

	_, err := m.Acquire(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClose_ReleasesConnAndForgetsSession(t *testing.T) {
	m := newTestManager(t)
	defer m.Shutdown(context.Background())

	s, err := m.Connect(context.Background(), connectReq())
	require.NoError(t, err)
	_, err = m.Acquire(context.Background(), s.UUID)
	require.NoError(t, err)

	require.NoError(t, m.Close(context.Background(), s.UUID))
	_, ok := m.Get(s.UUID)
	assert.False(t, ok)
}

func TestEvictExpired_SkipsSessionsWithBorrowedConn(t *testing.T) {
	m := newTestManager(t)
	defer m.Shutdown(context.Background())
	m.idleTTL = time.Millisecond

	s, err := m.Connect(context.Background(), connectReq())
	require.NoError(t, err)
	_, err = m.Acquire(context.Background(), s.UUID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	m.evictExpired()

	_, ok := m.Get(s.UUID)
	assert.True(t, ok, "a session holding a borrowed connection must not be evicted")
}

func TestEvictExpired_DropsIdleSession(t *testing.T) {
	m := newTestManager(t)
	defer m.Shutdown(context.Background())
	m.idleTTL = time.Millisecond

	s, err := m.Connect(context.Background(), connectReq())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	m.evictExpired()

	_, ok := m.Get(s.UUID)
	assert.False(t, ok)
}
