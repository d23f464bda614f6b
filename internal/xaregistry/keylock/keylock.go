// Package keylock provides per-key mutual exclusion without a global
// lock: operations on different keys proceed fully in parallel, while
// operations on the same key serialize. The XA transaction registry
// uses this so two branches with different Xids never block each other.
package keylock

import "sync"

type refMutex struct {
	mu  sync.Mutex
	ref int
}

// Map lazily creates one lock per key on first use and removes it once no
// goroutine holds or awaits it, so the map does not grow unboundedly for
// short-lived keys such as XidKeys that are deleted on commit/rollback.
type Map[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*refMutex
}

// NewMap creates an empty keyed-lock map.
func NewMap[K comparable]() *Map[K] {
	return &Map[K]{locks: make(map[K]*refMutex)}
}

// Lock acquires the per-key lock for k, creating it if necessary, and
// returns an unlock function the caller must call exactly once.
func (m *Map[K]) Lock(k K) func() {
	m.mu.Lock()
	e, ok := m.locks[k]
	if !ok {
		e = &refMutex{}
		m.locks[k] = e
	}
	e.ref++
	m.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.mu.Lock()
		e.ref--
		if e.ref == 0 {
			delete(m.locks, k)
		}
		m.mu.Unlock()
	}
}
