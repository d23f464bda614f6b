// Package xapool implements the XA backend session pool: same shape
// as internal/connpool but the pooled object is an XA backend
// session produced by a reflectively-configured vendor XA datasource
// (internal/backend/xareflect), and the pool itself is hand-rolled rather
// than delegated to database/sql, since the XA registry's branch pinning requires
// direct control over individual session objects that database/sql's own
// pool does not expose.
package xapool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ojp-io/ojp/internal/backend"
	"github.com/ojp-io/ojp/internal/backend/pgxprovider"
	"github.com/ojp-io/ojp/internal/backend/xareflect"
	"github.com/ojp-io/ojp/internal/connpool"
	"github.com/ojp-io/ojp/internal/dsconfig"
	"github.com/ojp-io/ojp/internal/logging"
	"github.com/ojp-io/ojp/internal/pkg/singleflight"
	"github.com/ojp-io/ojp/internal/providerreg"
)

// ErrPoolClosed is returned by borrow when the pool for a hash has been
// shut down.
var ErrPoolClosed = errors.New("xapool: pool is shut down")

const (
	// DefaultValidationPeriod bounds how often an idle session is
	// pinged before being handed back out.
	DefaultValidationPeriod = 30 * time.Second
	// DefaultCleanupInterval is the sweep cadence for evicting expired
	// and invalidated idle sessions.
	DefaultCleanupInterval = 10 * time.Second
)

// sessionDialer builds a brand-new XA backend Session for one connection
// hash, by reflectively configuring a vendor XADataSource and opening a
// physical connection from it.
type sessionDialer struct {
	driverFamily string
	props        map[string]string
}

func (d *sessionDialer) dial(ctx context.Context) (*Session, error) {
	ds, err := xareflect.Build(d.driverFamily, d.props)
	if err != nil {
		return nil, fmt.Errorf("xapool: build XA datasource: %w", err)
	}
	dsner, ok := ds.(interface{ DSN() string })
	if !ok {
		return nil, fmt.Errorf("xapool: datasource for %q does not expose a DSN", d.driverFamily)
	}

	sqlDB, err := pgxprovider.Open(dsner.DSN())
	if err != nil {
		return nil, fmt.Errorf("xapool: open: %w", err)
	}
	sc, err := sqlDB.Conn(ctx)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("xapool: dial XA connection: %w", err)
	}

	conn := backend.NewConn("", d.driverFamily, sc)
	return NewSession(conn, d.driverFamily), nil
}

// Manager owns one hand-rolled session pool per connection hash.
type Manager struct {
	registry *providerreg.Registry

	mu     sync.Mutex
	groups map[connpool.Hash]*group
	sf     singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a Manager and starts its background eviction sweep.
// Call Close to stop it. Idle sessions are validated on borrow, not by the
// sweep, and every group is built with a leak threshold of 0, so the
// sweep's leak check never reports.
func NewManager(registry *providerreg.Registry) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		registry: registry,
		groups:   make(map[connpool.Hash]*group),
		ctx:      ctx,
		cancel:   cancel,
	}
	go m.sweepLoop()
	return m
}

// Borrow returns a live XA Session for hash, creating the session pool on
// first use. cfg supplies the pool sizing; props is the full property set
// passed to the reflective XA datasource factory.
func (m *Manager) Borrow(ctx context.Context, hash connpool.Hash, props map[string]string, cfg *dsconfig.Configuration) (*Session, error) {
	desc, err := m.registry.Select(providerreg.KindXA)
	if err != nil {
		return nil, fmt.Errorf("xapool: select provider: %w", err)
	}

	g := m.getOrCreateGroup(hash, desc.DriverFamily, props, cfg)

	timeout := time.Duration(cfg.ConnectionTimeout) * time.Millisecond
	borrowCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		borrowCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s, err := g.borrow(borrowCtx, timeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.registry.Demote(providerreg.KindXA, desc.DriverFamily)
		}
		return nil, err
	}
	return s, nil
}

func (m *Manager) getOrCreateGroup(hash connpool.Hash, driverFamily string, props map[string]string, cfg *dsconfig.Configuration) *group {
	m.mu.Lock()
	if g, ok := m.groups[hash]; ok {
		m.mu.Unlock()
		return g
	}
	m.mu.Unlock()

	v, _, _ := m.sf.Do(hash.String(), func() (any, error) {
		m.mu.Lock()
		if g, ok := m.groups[hash]; ok {
			m.mu.Unlock()
			return g, nil
		}
		m.mu.Unlock()

		dial := &sessionDialer{driverFamily: driverFamily, props: props}
		g := newGroup(dial, cfg.MaximumPoolSize, cfg.MinimumIdle,
			time.Duration(cfg.IdleTimeoutMS)*time.Millisecond,
			time.Duration(cfg.MaxLifetimeMS)*time.Millisecond,
			0, DefaultValidationPeriod)

		m.mu.Lock()
		m.groups[hash] = g
		m.mu.Unlock()
		return g, nil
	})
	return v.(*group)
}

// Release returns s to hash's pool, discarding it instead if stillHealthy
// is false — used after a failed validation query or a class-08 sqlState
// observed while the session was in use.
func (m *Manager) Release(hash connpool.Hash, s *Session, stillHealthy bool) {
	m.mu.Lock()
	g, ok := m.groups[hash]
	m.mu.Unlock()
	if !ok {
		s.Conn.Close()
		return
	}
	g.release(s, stillHealthy)
}

// Invalidate releases s back to the pool flagged unhealthy, so it is
// destroyed rather than reused, logging reason for diagnostics.
func (m *Manager) Invalidate(hash connpool.Hash, s *Session, reason string) {
	logging.Op().Warn().Str("connHash", hash.String()).Str("reason", reason).Msg("XA backend session invalidated")
	m.Release(hash, s, false)
}

// Shutdown drains and closes the pool for hash.
func (m *Manager) Shutdown(hash connpool.Hash) {
	m.mu.Lock()
	g, ok := m.groups[hash]
	delete(m.groups, hash)
	m.mu.Unlock()
	if ok {
		g.shutdown()
	}
}

// Stats returns (active, idle, total) for hash's pool.
func (m *Manager) Stats(hash connpool.Hash) (active, idle, total int, ok bool) {
	m.mu.Lock()
	g, ok := m.groups[hash]
	m.mu.Unlock()
	if !ok {
		return 0, 0, 0, false
	}
	a, i, t := g.stats()
	return a, i, t, true
}

// Close stops the background sweep loop and shuts down every pool.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	groups := make([]*group, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, g)
	}
	m.groups = make(map[connpool.Hash]*group)
	m.mu.Unlock()
	for _, g := range groups {
		g.shutdown()
	}
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *Manager) sweepOnce() {
	m.mu.Lock()
	groups := make([]*group, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, g)
	}
	m.mu.Unlock()

	for _, g := range groups {
		g.evictExpired(func(s *Session, held time.Duration) {
			logging.Op().Warn().Dur("held", held).Msg("XA backend session leak suspected: borrowed past leakDetectionThreshold")
		})
	}
}
