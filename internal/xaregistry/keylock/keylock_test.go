package keylock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLock_SerializesSameKey(t *testing.T) {
	m := NewMap[string]()
	var inCriticalSection atomic.Bool
	var overlapped atomic.Bool
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("x")
			defer unlock()
			if !inCriticalSection.CompareAndSwap(false, true) {
				overlapped.Store(true)
			}
			time.Sleep(time.Millisecond)
			inCriticalSection.Store(false)
		}()
	}
	wg.Wait()
	assert.False(t, overlapped.Load(), "two goroutines held the same key's lock concurrently")
}

func TestLock_DifferentKeysRunConcurrently(t *testing.T) {
	m := NewMap[string]()
	start := time.Now()

	var wg sync.WaitGroup
	for _, k := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			unlock := m.Lock(k)
			defer unlock()
			time.Sleep(30 * time.Millisecond)
		}(k)
	}
	wg.Wait()

	assert.Less(t, time.Since(start), 90*time.Millisecond, "distinct keys should not serialize against each other")
}

func TestLock_MapShrinksAfterUnlock(t *testing.T) {
	m := NewMap[string]()
	unlock := m.Lock("x")
	unlock()

	m.mu.Lock()
	n := len(m.locks)
	m.mu.Unlock()
	assert.Equal(t, 0, n, "released keys should not leak map entries")
}
