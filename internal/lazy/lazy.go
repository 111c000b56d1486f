// Package lazy provides a per-key memoization map with request
// coalescing: concurrent lookups for the same key share a single
// computation and observe the same resolved value.
package lazy

import (
	"context"
	"sync"
)

type entry[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Map memoizes the result of a computation per key. Successful values
// persist until Reset; failures are forgotten so the next reference
// retries rather than remembering a transient error forever.
type Map[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{entries: make(map[K]*entry[V])}
}

// Resolve returns the value for key, computing it with fn if no
// lookup is pending or completed. The pending handle is inserted
// before fn starts, so a second caller arriving mid-computation waits
// on the first rather than dispatching a duplicate.
func (m *Map[K, V]) Resolve(ctx context.Context, key K, fn func(context.Context) (V, error)) (V, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry[V]{done: make(chan struct{})}
		m.entries[key] = e
		m.mu.Unlock()

		e.val, e.err = fn(ctx)
		if e.err != nil {
			m.mu.Lock()
			if m.entries[key] == e {
				delete(m.entries, key)
			}
			m.mu.Unlock()
		}
		close(e.done)

		return e.val, e.err
	}
	m.mu.Unlock()

	select {
	case <-e.done:
		return e.val, e.err
	case <-ctx.Done():
		var zero V

		return zero, ctx.Err()
	}
}

// Reset discards every entry. In-flight computations complete and are
// delivered to their waiters but are not remembered.
func (m *Map[K, V]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[K]*entry[V])
}

// Len reports the number of pending or completed entries.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}
