package connpool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ojp-io/ojp/internal/dsconfig"
	"github.com/ojp-io/ojp/internal/providerreg"
)

// fakeDriver is a minimal database/sql/driver.Driver stand-in: it never
// talks to a real database, just counts dial attempts.
type fakeDriver struct {
	opens atomic.Int64
}

func (d *fakeDriver) Open(name string) (driver.Conn, error) {
	d.opens.Add(1)
	return &fakeConn{}, nil
}

type fakeConn struct{}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *fakeConn) Close() error                              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)                 { return nil, driver.ErrSkip }

func newTestManager(t *testing.T) (*Manager, *fakeDriver) {
	t.Helper()
	fd := &fakeDriver{}
	name := "connpool-fake-" + t.Name()
	sql.Register(name, fd)

	reg := providerreg.New("")
	require.NoError(t, reg.Discover(context.Background()))

	dialers := map[string]Dialer{
		"postgresql": func(dsn string) (*sql.DB, error) { return sql.Open(name, dsn) },
	}
	return NewManager(reg, dialers), fd
}

func pooledConfig() *dsconfig.Configuration {
	return &dsconfig.Configuration{
		PoolEnabled:       true,
		MaximumPoolSize:   10,
		MinimumIdle:       0,
		IdleTimeoutMS:     600000,
		MaxLifetimeMS:     1800000,
		ConnectionTimeout: 5000,
	}
}

func TestBorrow_CreatesPoolOnFirstUse(t *testing.T) {
	m, _ := newTestManager(t)
	hash := Compute("postgres://h/db", "alice", nil)

	conn, err := m.Borrow(context.Background(), hash, "postgres://h/db", pooledConfig())
	require.NoError(t, err)
	require.NotNil(t, conn)

	stats, ok := m.Stats(hash)
	require.True(t, ok)
	assert.Equal(t, 1, stats.Active)

	require.NoError(t, m.Release(context.Background(), conn, true))
}

func TestBorrow_ConcurrentFirstBorrowsAllSucceed(t *testing.T) {
	m, fd := newTestManager(t)
	hash := Compute("postgres://h/db", "alice", nil)

	var wg sync.WaitGroup
	var successes atomic.Int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := m.Borrow(context.Background(), hash, "postgres://h/db", pooledConfig())
			if err == nil {
				successes.Add(1)
				_ = m.Release(context.Background(), c, true)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(8), successes.Load())

	// Exactly one pool (sql.DB) should have been dialed for the hash,
	// though database/sql itself may open several physical conns under it
	// -- what singleflight guarantees is one *pool creation*, not one
	// physical connection per se.
	assert.GreaterOrEqual(t, fd.opens.Load(), int64(1))
}

func TestBorrow_PoolDisabledUsesUnpooledConnection(t *testing.T) {
	m, fd := newTestManager(t)
	hash := Compute("postgres://h/db", "alice", nil)

	cfg := pooledConfig()
	cfg.PoolEnabled = false

	c1, err := m.Borrow(context.Background(), hash, "postgres://h/db", cfg)
	require.NoError(t, err)
	require.NoError(t, m.Release(context.Background(), c1, true))

	c2, err := m.Borrow(context.Background(), hash, "postgres://h/db", cfg)
	require.NoError(t, err)
	require.NoError(t, m.Release(context.Background(), c2, true))

	assert.GreaterOrEqual(t, fd.opens.Load(), int64(2), "each unpooled borrow dials its own throwaway pool")

	_, ok := m.Stats(hash)
	assert.False(t, ok, "an unpooled borrow never registers a shared pool entry")
}

func TestShutdown_RemovesPool(t *testing.T) {
	m, _ := newTestManager(t)
	hash := Compute("postgres://h/db", "alice", nil)

	conn, err := m.Borrow(context.Background(), hash, "postgres://h/db", pooledConfig())
	require.NoError(t, err)
	require.NoError(t, m.Release(context.Background(), conn, true))

	require.NoError(t, m.Shutdown(context.Background(), hash))

	_, ok := m.Stats(hash)
	assert.False(t, ok)
}
