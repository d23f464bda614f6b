package xapool

import (
	"context"
	"sync"
	"time"
)

// group holds every XA backend session for one connection hash. It is a
// hand-rolled pool: XA session pinning/affinity cannot be expressed
// through database/sql's own pool, so this package manages its own idle
// list, borrow-wait, and eviction instead of delegating to database/sql
// the way the ordinary connection pool does.
//
// # Locking discipline
//
// All fields are guarded by mu (its write side). cond is bound to mu and
// used to wake goroutines waiting for a session to become available;
// callers must hold mu.Lock() around cond.Wait/Signal/Broadcast.
type group struct {
	mu   sync.RWMutex
	cond *sync.Cond

	db dialer

	idle     []*Session          // idle sessions, used as a LIFO stack
	idleSet  map[*Session]struct{}
	borrowed map[*Session]struct{} // borrowed sessions, tracked for leak detection
	total    int
	waiters  int
	closing  bool

	maxSize           int
	minIdle           int
	idleTimeout       time.Duration
	maxLifetime       time.Duration
	leakThreshold     time.Duration
	validationPeriod  time.Duration
}

// dialer builds a brand-new Session on demand. internal/xapool's
// sessionDialer is the production implementation; tests substitute a
// stub that never touches a real backend.
type dialer interface {
	dial(ctx context.Context) (*Session, error)
}

func newGroup(dial dialer, maxSize, minIdle int, idleTimeout, maxLifetime, leakThreshold, validationPeriod time.Duration) *group {
	g := &group{
		db:               dial,
		idleSet:          make(map[*Session]struct{}),
		borrowed:         make(map[*Session]struct{}),
		maxSize:          maxSize,
		minIdle:          minIdle,
		idleTimeout:      idleTimeout,
		maxLifetime:      maxLifetime,
		leakThreshold:    leakThreshold,
		validationPeriod: validationPeriod,
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// borrow returns an idle session with capacity, creating a new one if
// below maxSize, or waits until one is released, a timeout elapses, or ctx
// is cancelled.
func (g *group) borrow(ctx context.Context, timeout time.Duration) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		if g.closing {
			return nil, ErrPoolClosed
		}

		if s := g.takeIdleLocked(ctx); s != nil {
			return s, nil
		}

		if g.total < g.maxSize {
			g.total++
			g.mu.Unlock()
			s, err := g.db.dial(ctx)
			g.mu.Lock()
			if err != nil {
				g.total--
				g.cond.Broadcast()
				return nil, err
			}
			g.markBorrowedLocked(s)
			return s, nil
		}

		if err := g.waitLocked(ctx, timeout); err != nil {
			return nil, err
		}
	}
}

// takeIdleLocked pops the most recently released session from the idle
// stack, skipping (and destroying) any that fails validation. Must be
// called with mu held.
func (g *group) takeIdleLocked(ctx context.Context) *Session {
	for len(g.idle) > 0 {
		last := len(g.idle) - 1
		s := g.idle[last]
		g.idle = g.idle[:last]
		delete(g.idleSet, s)

		if g.validationPeriod > 0 && time.Since(s.lastUsed) > g.validationPeriod {
			g.mu.Unlock()
			err := s.Conn.Ping(ctx)
			g.mu.Lock()
			if err != nil {
				s.Conn.Close()
				g.total--
				continue
			}
		}

		g.markBorrowedLocked(s)
		return s
	}
	return nil
}

func (g *group) markBorrowedLocked(s *Session) {
	s.borrowed = true
	s.borrowAt = time.Now()
	g.borrowed[s] = struct{}{}
}

// waitLocked suspends the caller until cond is signalled, ctx is
// cancelled, or timeout elapses, translating ctx cancellation into a
// Broadcast wakeup since sync.Cond has no native context-awareness.
func (g *group) waitLocked(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.waiters++
	defer func() { g.waiters-- }()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			g.mu.Lock()
			g.cond.Broadcast()
			g.mu.Unlock()
		case <-done:
		}
	}()

	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() {
			g.mu.Lock()
			g.cond.Broadcast()
			g.mu.Unlock()
		})
	}

	g.cond.Wait()
	close(done)
	if timer != nil {
		timer.Stop()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// release returns s to the idle set, or destroys it if stillHealthy is
// false or the group is closing/draining.
func (g *group) release(s *Session, stillHealthy bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.borrowed, s)
	s.borrowed = false
	s.lastUsed = time.Now()

	if !stillHealthy || g.closing {
		s.Conn.Close()
		g.total--
		g.cond.Broadcast()
		return
	}

	g.idle = append(g.idle, s)
	g.idleSet[s] = struct{}{}
	g.cond.Broadcast()
}

// evictExpired removes idle sessions past idleTimeout or maxLifetime,
// respecting the minIdle floor, and logs a leak warning for any borrowed
// session held past leakThreshold without being returned.
func (g *group) evictExpired(onLeak func(*Session, time.Duration)) {
	g.mu.Lock()
	defer g.mu.Unlock()

	kept := g.idle[:0]
	for _, s := range g.idle {
		expired := (g.idleTimeout > 0 && s.Idle() > g.idleTimeout) ||
			(g.maxLifetime > 0 && s.Age() > g.maxLifetime)
		if expired && len(kept) >= g.minIdle {
			delete(g.idleSet, s)
			s.Conn.Close()
			g.total--
			continue
		}
		kept = append(kept, s)
	}
	g.idle = kept

	if g.leakThreshold > 0 && onLeak != nil {
		for s := range g.borrowed {
			if held := time.Since(s.borrowAt); held > g.leakThreshold {
				onLeak(s, held)
			}
		}
	}
}

// shutdown marks the group closing and destroys every idle session.
// Borrowed sessions are destroyed as they are released.
func (g *group) shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closing = true
	for _, s := range g.idle {
		s.Conn.Close()
	}
	g.total -= len(g.idle)
	g.idle = nil
	g.idleSet = make(map[*Session]struct{})
	g.cond.Broadcast()
}

// stats returns observability counters under a read lock.
func (g *group) stats() (active, idle, total int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.borrowed), len(g.idle), g.total
}
