package xapool

import (
	"time"

	"github.com/ojp-io/ojp/internal/backend"
)

// Session is a pool-pinned XA backend session: a physical connection
// opened from a reflectively-built vendor XA datasource
// (internal/backend/xareflect), plus the bookkeeping needed to validate,
// evict and leak-detect it.
//
// A Session is owned at any moment by exactly one of: an idle pool slot,
// or a session.Session that borrowed it via XAStartAction. While a
// branch is active, the owning session.Session and the xaregistry.Registry
// entry tracking that branch both hold a reference to it — one for
// routing the client's statements, the other for driving two-phase
// commit — but neither the pool nor any other session.Session may touch
// it until XACommit/XARollback releases it.
type Session struct {
	Conn         *backend.Conn
	DriverFamily string

	createdAt time.Time
	lastUsed  time.Time
	borrowed  bool
	borrowAt  time.Time
}

// NewSession wraps a borrowed backend connection as a pool-pinned XA
// session.
func NewSession(conn *backend.Conn, driverFamily string) *Session {
	now := time.Now()
	return &Session{
		Conn:         conn,
		DriverFamily: driverFamily,
		createdAt:    now,
		lastUsed:     now,
	}
}

// Age reports how long ago this session's physical connection was opened,
// compared against maxLifetime by the eviction sweep.
func (s *Session) Age() time.Duration { return time.Since(s.createdAt) }

// Idle reports how long this session has sat unborrowed in the pool,
// compared against idleTimeout by the eviction sweep.
func (s *Session) Idle() time.Duration { return time.Since(s.lastUsed) }
