package fsys

import (
	"sync"
	"sync/atomic"
)

const noHolder = -1

// Serializer is the single gate around every filesystem call. It records
// which process holds it so an exiting process can give it back.
type Serializer struct {
	mu     sync.Mutex
	holder atomic.Int64
}

// NewSerializer returns an unheld serializer.
func NewSerializer() *Serializer {
	s := &Serializer{}
	s.holder.Store(noHolder)
	return s
}

// Acquire blocks until the gate is free and takes it for holder.
func (s *Serializer) Acquire(holder int) {
	s.mu.Lock()
	s.holder.Store(int64(holder))
}

// Release gives the gate back. It must be called by the current holder.
func (s *Serializer) Release(holder int) {
	if !s.holder.CompareAndSwap(int64(holder), noHolder) {
		panic("fsys: serializer released by a process that does not hold it")
	}
	s.mu.Unlock()
}

// Held reports whether holder currently owns the gate.
func (s *Serializer) Held(holder int) bool {
	return s.holder.Load() == int64(holder)
}

// ReleaseIfHeld releases the gate if holder owns it and reports whether it
// did.
func (s *Serializer) ReleaseIfHeld(holder int) bool {
	if !s.holder.CompareAndSwap(int64(holder), noHolder) {
		return false
	}
	s.mu.Unlock()
	return true
}

// Do runs fn holding the gate.
func (s *Serializer) Do(holder int, fn func() error) error {
	s.Acquire(holder)
	defer s.ReleaseIfHeld(holder)
	return fn()
}
