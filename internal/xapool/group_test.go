package xapool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ojp-io/ojp/internal/backend"
)

// fakeXADriver and fakeXAConn let group tests exercise borrow/release/
// eviction without a live backend, in the same stub-over-live-database
// style as internal/connpool's tests.
type fakeXADriver struct{}

func (fakeXADriver) Open(name string) (driver.Conn, error) { return fakeXAConn{}, nil }

type fakeXAConn struct{}

func (fakeXAConn) Prepare(query string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (fakeXAConn) Close() error                              { return nil }
func (fakeXAConn) Begin() (driver.Tx, error)                 { return nil, driver.ErrSkip }

func newFakeSession(t *testing.T) *Session {
	t.Helper()
	name := "xapool-fake-" + t.Name()
	sql.Register(name, fakeXADriver{})
	db, err := sql.Open(name, "")
	require.NoError(t, err)
	sc, err := db.Conn(context.Background())
	require.NoError(t, err)
	return NewSession(backend.NewConn("h", "postgresql", sc), "postgresql")
}

// countingDialer hands out fresh fake sessions and counts how many it
// built, standing in for sessionDialer in tests.
type countingDialer struct {
	t     *testing.T
	calls int
}

func (d *countingDialer) dial(ctx context.Context) (*Session, error) {
	d.calls++
	return newFakeSession(d.t), nil
}

func TestGroup_BorrowCreatesUpToMaxSize(t *testing.T) {
	d := &countingDialer{t: t}
	g := newGroup(d, 2, 0, time.Minute, time.Hour, 0, 0)

	s1, err := g.borrow(context.Background(), 0)
	require.NoError(t, err)
	s2, err := g.borrow(context.Background(), 0)
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	assert.Equal(t, 2, d.calls)

	active, idle, total := g.stats()
	assert.Equal(t, 2, active)
	assert.Equal(t, 0, idle)
	assert.Equal(t, 2, total)
}

func TestGroup_BorrowBlocksUntilReleaseWhenAtCapacity(t *testing.T) {
	d := &countingDialer{t: t}
	g := newGroup(d, 1, 0, time.Minute, time.Hour, 0, 0)

	s1, err := g.borrow(context.Background(), 0)
	require.NoError(t, err)

	done := make(chan *Session, 1)
	go func() {
		s, err := g.borrow(context.Background(), 0)
		require.NoError(t, err)
		done <- s
	}()

	time.Sleep(20 * time.Millisecond)
	g.release(s1, true)

	select {
	case s2 := <-done:
		assert.Same(t, s1, s2, "the waiting borrow reuses the released session instead of dialing a new one")
	case <-time.After(time.Second):
		t.Fatal("borrow did not unblock after release")
	}
	assert.Equal(t, 1, d.calls)
}

func TestGroup_BorrowTimesOutWhenExhausted(t *testing.T) {
	d := &countingDialer{t: t}
	g := newGroup(d, 1, 0, time.Minute, time.Hour, 0, 0)

	_, err := g.borrow(context.Background(), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = g.borrow(ctx, 30*time.Millisecond)
	require.Error(t, err)
}

func TestGroup_ReleaseUnhealthyDestroysSession(t *testing.T) {
	d := &countingDialer{t: t}
	g := newGroup(d, 2, 0, time.Minute, time.Hour, 0, 0)

	s, err := g.borrow(context.Background(), 0)
	require.NoError(t, err)
	g.release(s, false)

	_, idle, total := g.stats()
	assert.Equal(t, 0, idle)
	assert.Equal(t, 0, total)
}

func TestGroup_EvictExpiredRespectsMinIdle(t *testing.T) {
	d := &countingDialer{t: t}
	g := newGroup(d, 5, 1, time.Millisecond, time.Hour, 0, 0)

	s1, err := g.borrow(context.Background(), 0)
	require.NoError(t, err)
	s2, err := g.borrow(context.Background(), 0)
	require.NoError(t, err)
	g.release(s1, true)
	g.release(s2, true)

	time.Sleep(5 * time.Millisecond)
	g.evictExpired(nil)

	_, idle, total := g.stats()
	assert.Equal(t, 1, idle, "minIdle floor keeps exactly one idle session alive")
	assert.Equal(t, 1, total)
}

func TestGroup_EvictExpiredReportsLeaks(t *testing.T) {
	d := &countingDialer{t: t}
	g := newGroup(d, 2, 0, time.Minute, time.Hour, time.Millisecond, 0)

	_, err := g.borrow(context.Background(), 0)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	var leaked bool
	g.evictExpired(func(s *Session, held time.Duration) { leaked = true })
	assert.True(t, leaked)
}

func TestGroup_ShutdownRejectsNewBorrows(t *testing.T) {
	d := &countingDialer{t: t}
	g := newGroup(d, 2, 0, time.Minute, time.Hour, 0, 0)
	g.shutdown()

	_, err := g.borrow(context.Background(), 0)
	assert.ErrorIs(t, err, ErrPoolClosed)
}
