// Package syncx provides extended synchronization primitives
package syncx

import (
	"sync"
	"sync/atomic"
)

// Snapshot holds an immutable value that readers load without locking and
// writers replace wholesale. Readers never observe a partially updated value
// as long as T is not mutated after Store.
type Snapshot[T any] struct {
	mu  sync.Mutex // serializes writers
	ptr atomic.Pointer[T]
}

// NewSnapshot creates a snapshot holding initial.
func NewSnapshot[T any](initial T) *Snapshot[T] {
	s := &Snapshot[T]{}
	s.ptr.Store(&initial)
	return s
}

// Load returns the current value.
func (s *Snapshot[T]) Load() T {
	if p := s.ptr.Load(); p != nil {
		return *p
	}
	var zero T
	return zero
}

// Store replaces the value.
func (s *Snapshot[T]) Store(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ptr.Store(&v)
}

// Swap replaces the value and returns the previous one.
func (s *Snapshot[T]) Swap(v T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.ptr.Swap(&v)
	if old == nil {
		var zero T
		return zero
	}
	return *old
}

// Update derives a new value from the current one. fn must not mutate its
// argument in place. If fn returns an error the value is left unchanged.
func (s *Snapshot[T]) Update(fn func(T) (T, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.Load())
	if err != nil {
		return err
	}
	s.ptr.Store(&next)
	return nil
}
