// Package keyed provides per-key mutual exclusion: operations on the same key
// are serialized while different keys never contend beyond a map lookup.
package keyed

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Mutex is a set of lazily created locks indexed by key. The zero value is ready to use.
type Mutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*entry
}

// Lock acquires the lock for key and returns its unlock function.
func (m *Mutex[K]) Lock(key K) (unlock func()) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[K]*entry)
	}
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// Len returns the number of keys currently locked or waited on.
func (m *Mutex[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
