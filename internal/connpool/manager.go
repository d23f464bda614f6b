// Package connpool implements the connection-hash pool manager: it
// maps a connection hash to a lazily-created database/sql pool, using
// database/sql's own connection pooling (SetMaxOpenConns et al.) as the
// physical pool instead of reimplementing one, since nothing here needs
// connection pinning — that requirement belongs to internal/xapool.
package connpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ojp-io/ojp/internal/backend"
	"github.com/ojp-io/ojp/internal/dsconfig"
	"github.com/ojp-io/ojp/internal/logging"
	"github.com/ojp-io/ojp/internal/pkg/singleflight"
	"github.com/ojp-io/ojp/internal/providerreg"
)

// ErrPoolTimeout is returned when no connection becomes available within
// a data source's connectionTimeout.
var ErrPoolTimeout = errors.New("connpool: timed out waiting for a connection")

// Dialer opens a database/sql.DB for a given DSN. Each registered pool
// provider driver family supplies one (internal/backend/pgxprovider.Open
// for "postgresql").
type Dialer func(dsn string) (*sql.DB, error)

// PoolStats reports observable pool state for diagnostics and metrics.
type PoolStats struct {
	Active       int
	Idle         int
	TotalBorrows int64
	WaitCount    int64
}

type poolEntry struct {
	db           *sql.DB
	driverFamily string
	totalBorrows atomic.Int64
	waitCount    atomic.Int64
}

// Manager owns one database/sql pool per connection hash.
type Manager struct {
	registry *providerreg.Registry
	dialers  map[string]Dialer

	pools sync.Map // map[Hash]*poolEntry
	group singleflight.Group

	// unpooled tracks the private, single-use *sql.DB instances created
	// for a connHash whose DataSourceConfiguration has PoolEnabled=false,
	// keyed by the backend.Conn pointer returned to the caller, so
	// Release can tear the whole throwaway DB down afterward.
	unpooledMu sync.Mutex
	unpooled   map[*backend.Conn]*sql.DB
}

// NewManager creates a Manager that selects a driver family via registry
// and dials it using dialers.
func NewManager(registry *providerreg.Registry, dialers map[string]Dialer) *Manager {
	return &Manager{
		registry: registry,
		dialers:  dialers,
		unpooled: make(map[*backend.Conn]*sql.DB),
	}
}

// Borrow returns a live backend.Conn for hash, lazily creating the
// database/sql pool (or, if cfg.PoolEnabled is false, a private one-shot
// connection) on first use. Concurrent first-borrows for a brand new hash
// share a single dial attempt via singleflight.
func (m *Manager) Borrow(ctx context.Context, hash Hash, backendURL string, cfg *dsconfig.Configuration) (*backend.Conn, error) {
	desc, err := m.registry.Select(providerreg.KindStandard)
	if err != nil {
		return nil, fmt.Errorf("connpool: select provider: %w", err)
	}
	dial, ok := m.dialers[desc.DriverFamily]
	if !ok {
		return nil, fmt.Errorf("connpool: no dialer registered for driver family %q", desc.DriverFamily)
	}

	if !cfg.PoolEnabled {
		return m.borrowUnpooled(ctx, hash, backendURL, desc.DriverFamily, dial)
	}

	entry, err := m.getOrCreateEntry(hash, backendURL, desc.DriverFamily, cfg, dial)
	if err != nil {
		return nil, err
	}

	entry.waitCount.Add(1)
	timeout := time.Duration(cfg.ConnectionTimeout) * time.Millisecond
	borrowCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		borrowCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sc, err := entry.db.Conn(borrowCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrPoolTimeout
		}
		return nil, fmt.Errorf("connpool: borrow: %w", err)
	}
	entry.totalBorrows.Add(1)

	return backend.NewConn(hash.String(), desc.DriverFamily, sc), nil
}

func (m *Manager) borrowUnpooled(ctx context.Context, hash Hash, backendURL, driverFamily string, dial Dialer) (*backend.Conn, error) {
	db, err := dial(backendURL)
	if err != nil {
		return nil, fmt.Errorf("connpool: dial unpooled connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	sc, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connpool: borrow unpooled connection: %w", err)
	}

	conn := backend.NewConn(hash.String(), driverFamily, sc)

	m.unpooledMu.Lock()
	m.unpooled[conn] = db
	m.unpooledMu.Unlock()

	return conn, nil
}

func (m *Manager) getOrCreateEntry(hash Hash, backendURL, driverFamily string, cfg *dsconfig.Configuration, dial Dialer) (*poolEntry, error) {
	if v, ok := m.pools.Load(hash); ok {
		return v.(*poolEntry), nil
	}

	v, err, _ := m.group.Do(hash.String(), func() (any, error) {
		if v, ok := m.pools.Load(hash); ok {
			return v.(*poolEntry), nil
		}
		db, err := dial(backendURL)
		if err != nil {
			m.registry.Demote(providerreg.KindStandard, driverFamily)
			return nil, fmt.Errorf("connpool: dial: %w", err)
		}
		db.SetMaxOpenConns(cfg.MaximumPoolSize)
		db.SetMaxIdleConns(cfg.MinimumIdle)
		db.SetConnMaxIdleTime(time.Duration(cfg.IdleTimeoutMS) * time.Millisecond)
		db.SetConnMaxLifetime(time.Duration(cfg.MaxLifetimeMS) * time.Millisecond)

		entry := &poolEntry{db: db, driverFamily: driverFamily}
		m.pools.Store(hash, entry)
		logging.Op().Info().Str("connHash", hash.String()).Str("driverFamily", driverFamily).
			Int("maximumPoolSize", cfg.MaximumPoolSize).Msg("created connection pool")
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*poolEntry), nil
}

// Release returns conn to its pool. If stillHealthy is false, the physical
// connection is discarded rather than recycled, via backend.Conn.Invalidate
// forcing database/sql to drop it instead of returning it to the idle set.
func (m *Manager) Release(ctx context.Context, conn *backend.Conn, stillHealthy bool) error {
	if !stillHealthy {
		if err := conn.Invalidate(); err != nil {
			logging.Op().Warn().Err(err).Msg("failed to invalidate unhealthy connection")
		}
	}
	closeErr := conn.Close()

	m.unpooledMu.Lock()
	db, wasUnpooled := m.unpooled[conn]
	delete(m.unpooled, conn)
	m.unpooledMu.Unlock()

	if wasUnpooled {
		if err := db.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}

// Shutdown drains and closes the pool for hash. Shutting down a hash with
// no pool is not an error.
func (m *Manager) Shutdown(ctx context.Context, hash Hash) error {
	v, ok := m.pools.LoadAndDelete(hash)
	if !ok {
		return nil
	}
	return v.(*poolEntry).db.Close()
}

// Stats returns observability counters for hash's pool.
func (m *Manager) Stats(hash Hash) (PoolStats, bool) {
	v, ok := m.pools.Load(hash)
	if !ok {
		return PoolStats{}, false
	}
	entry := v.(*poolEntry)
	dbStats := entry.db.Stats()
	return PoolStats{
		Active:       dbStats.InUse,
		Idle:         dbStats.Idle,
		TotalBorrows: entry.totalBorrows.Load(),
		WaitCount:    entry.waitCount.Load(),
	}, true
}

// AllStats returns PoolStats for every pool currently open, keyed by
// hash, for a periodic metrics collector to snapshot.
func (m *Manager) AllStats() map[string]PoolStats {
	out := make(map[string]PoolStats)
	m.pools.Range(func(k, v any) bool {
		hash := k.(Hash)
		entry := v.(*poolEntry)
		dbStats := entry.db.Stats()
		out[hash.String()] = PoolStats{
			Active:       dbStats.InUse,
			Idle:         dbStats.Idle,
			TotalBorrows: entry.totalBorrows.Load(),
			WaitCount:    entry.waitCount.Load(),
		}
		return true
	})
	return out
}
