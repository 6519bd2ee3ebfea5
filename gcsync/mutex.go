package gcsync

import (
	"sync"

	"github.com/embedrt/gcbind/ffi"
)

// Mutex is a mutual exclusion lock whose blocking acquisition parks the
// calling mutator in GC-safe state. The zero value is not usable; create
// one with NewMutex.
type Mutex struct {
	rt ffi.Runtime
	mu sync.Mutex
}

// NewMutex returns a GC-safe mutex coordinating with rt's collector.
func NewMutex(rt ffi.Runtime) *Mutex {
	return &Mutex{rt: rt}
}

// Lock acquires the mutex. An uncontended acquisition never touches the
// safepoint machinery; a contended one parks GC-safe.
func (m *Mutex) Lock() {
	if m.mu.TryLock() {
		return
	}
	state := m.rt.GCSafeEnter()
	m.mu.Lock()
	m.rt.GCSafeLeave(state)
}

// TryLock attempts the acquisition without blocking.
func (m *Mutex) TryLock() bool {
	return m.mu.TryLock()
}

// Unlock releases the mutex.
func (m *Mutex) Unlock() {
	m.mu.Unlock()
}

// RWMutex is a reader/writer lock whose blocking acquisitions park the
// calling mutator in GC-safe state.
type RWMutex struct {
	rt ffi.Runtime
	mu sync.RWMutex
}

// NewRWMutex returns a GC-safe reader/writer lock coordinating with rt's
// collector.
func NewRWMutex(rt ffi.Runtime) *RWMutex {
	return &RWMutex{rt: rt}
}

// Lock acquires the write side, parking GC-safe when contended.
func (m *RWMutex) Lock() {
	if m.mu.TryLock() {
		return
	}
	state := m.rt.GCSafeEnter()
	m.mu.Lock()
	m.rt.GCSafeLeave(state)
}

// TryLock attempts the write acquisition without blocking.
func (m *RWMutex) TryLock() bool { return m.mu.TryLock() }

// Unlock releases the write side.
func (m *RWMutex) Unlock() { m.mu.Unlock() }

// RLock acquires the read side, parking GC-safe when contended.
func (m *RWMutex) RLock() {
	if m.mu.TryRLock() {
		return
	}
	state := m.rt.GCSafeEnter()
	m.mu.RLock()
	m.rt.GCSafeLeave(state)
}

// TryRLock attempts the read acquisition without blocking.
func (m *RWMutex) TryRLock() bool { return m.mu.TryRLock() }

// RUnlock releases the read side.
func (m *RWMutex) RUnlock() { m.mu.RUnlock() }
