package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ojp-io/ojp/internal/config"
	"github.com/ojp-io/ojp/internal/connpool"
	"github.com/ojp-io/ojp/internal/dsconfig"
	"github.com/ojp-io/ojp/internal/logging"
)

// ErrNotFound is returned when a session UUID is unknown to the Manager,
// e.g. because the client reconnected after a server restart or the
// session was idle-evicted.
var ErrNotFound = errors.New("session: unknown session uuid")

const (
	// DefaultIdleTTL is the default session idle TTL before a session is
	// evicted and its connection released back to the pool.
	DefaultIdleTTL        = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Second
)

// ConnectRequest carries a client's raw OJP connection URL and the full
// property set from its connection request (JDBC-style props plus any
// ojp.* pooling keys), from which the backend URL, pooling
// configuration, and connection hash are all derived.
type ConnectRequest struct {
	RawURL     string
	Properties map[string]string
}

// Manager issues, tracks, and idle-evicts Sessions, and brokers
// connection borrow/release against the underlying connpool.Manager on
// their behalf.
type Manager struct {
	pool     *connpool.Manager
	resolver *dsconfig.Resolver

	mu       sync.RWMutex
	sessions map[string]*Session

	idleTTL         time.Duration
	cleanupInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a session manager and starts its idle-eviction
// sweep.
func NewManager(pool *connpool.Manager, resolver *dsconfig.Resolver, idleTTL, cleanupInterval time.Duration) *Manager {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		pool:            pool,
		resolver:        resolver,
		sessions:        make(map[string]*Session),
		idleTTL:         idleTTL,
		cleanupInterval: cleanupInterval,
		ctx:             ctx,
		cancel:          cancel,
	}
	m.wg.Add(1)
	go m.runEvictionLoop()
	return m
}

// Connect resolves req's backend URL and pooling configuration, computes
// the connection hash, and registers a new Session for it. It does not
// itself borrow a backend connection — that happens lazily via Acquire,
// keeping session identity separate from connection checkout.
func (m *Manager) Connect(ctx context.Context, req ConnectRequest) (*Session, error) {
	backendURL, err := config.ParseBackendURL(req.RawURL, req.Properties)
	if err != nil {
		return nil, err
	}
	cfg := m.resolver.Resolve(req.Properties)
	hash := connpool.Compute(backendURL, req.Properties["user"], poolingProps(req.Properties))

	s := newSession(hash, backendURL, cfg)

	m.mu.Lock()
	m.sessions[s.UUID] = s
	m.mu.Unlock()

	logging.Op().Debug().Str("session", s.UUID).Str("hash", hash.String()).Msg("session connected")
	return s, nil
}

// poolingProps narrows a full property set down to the keys connpool.Hash
// actually hashes over, so unrelated client properties (e.g. application
// name) never cause two otherwise-identical pools to fork.
func poolingProps(props map[string]string) map[string]string {
	keep := map[string]string{}
	for _, k := range []string{"maximumPoolSize", "minimumIdle", "idleTimeout", "maxLifetime", "poolingEnabled"} {
		if v, ok := props[k]; ok {
			keep[k] = v
		}
	}
	return keep
}

// Get looks up a previously connected session by UUID.
func (m *Manager) Get(uuid string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[uuid]
	return s, ok
}

// Acquire borrows a backend connection for the session from the
// connection-hash pool manager and binds it for the duration of the
// caller's unit of work.
func (m *Manager) Acquire(ctx context.Context, uuid string) (*Session, error) {
	s, ok := m.Get(uuid)
	if !ok {
		return nil, ErrNotFound
	}
	if c := s.Conn(); c != nil {
		s.Touch()
		return s, nil
	}
	c, err := m.pool.Borrow(ctx, s.Hash, s.BackendURL, s.Config)
	if err != nil {
		return nil, err
	}
	s.bind(c)
	return s, nil
}

// Release returns the session's currently bound connection to the pool.
func (m *Manager) Release(ctx context.Context, uuid string, stillHealthy bool) error {
	s, ok := m.Get(uuid)
	if !ok {
		return ErrNotFound
	}
	c := s.unbind()
	if c == nil {
		return nil
	}
	return m.pool.Release(ctx, c, stillHealthy)
}

// Close releases any bound connection and forgets the session entirely,
// e.g. on client disconnect.
func (m *Manager) Close(ctx context.Context, uuid string) error {
	m.mu.Lock()
	s, ok := m.sessions[uuid]
	if ok {
		delete(m.sessions, uuid)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.handles.closeAll()
	if c := s.unbind(); c != nil {
		return m.pool.Release(ctx, c, true)
	}
	return nil
}

// Shutdown stops the eviction sweep and closes every tracked session.
func (m *Manager) Shutdown(ctx context.Context) {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	uuids := make([]string, 0, len(m.sessions))
	for u := range m.sessions {
		uuids = append(uuids, u)
	}
	m.mu.Unlock()

	for _, u := range uuids {
		_ = m.Close(ctx, u)
	}
}

func (m *Manager) runEvictionLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

// evictExpired drops sessions that have been idle (no Acquire/Touch)
// longer than idleTTL and are not currently holding a checked-out
// connection — a session mid-use is never evicted out from under its
// caller.
func (m *Manager) evictExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for uuid, s := range m.sessions {
		if s.HasBorrowedConn() {
			continue
		}
		if s.Idle() >= m.idleTTL {
			delete(m.sessions, uuid)
			logging.Op().Debug().Str("session", uuid).Msg("session idle-evicted")
		}
	}
}
