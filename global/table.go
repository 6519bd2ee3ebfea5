package global

import (
	"sync"

	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/ffi"
)

// Ref is an opaque ticket for a globally rooted reference.
// Ref 0 is reserved and always invalid.
type Ref uint64

// Event types for root lifecycle notifications.
type EventType uint8

const (
	EventRooted EventType = iota
	EventUnrooted
)

// Event represents a root lifecycle event.
type Event struct {
	Ref  Ref
	Raw  gcbind.Raw
	Type EventType
}

// Observer receives notifications about root lifecycle events.
type Observer interface {
	OnRootEvent(Event)
}

// Table holds process-global roots. It registers itself with the collector
// and reports every held reference on each cycle.
type Table struct {
	rt ffi.Runtime

	mu        sync.RWMutex
	next      Ref
	roots     map[Ref]gcbind.Raw
	observers []Observer
	closed    bool
}

// NewTable creates an empty table and registers it with rt's collector.
func NewTable(rt ffi.Runtime) *Table {
	t := &Table{
		rt:    rt,
		next:  1,
		roots: make(map[Ref]gcbind.Raw),
	}
	rt.RegisterRoots(t)
	return t
}

// Insert roots raw globally and returns its ticket. Inserting into a closed
// table returns 0.
func (t *Table) Insert(raw gcbind.Raw) Ref {
	t.mu.Lock()
	if t.closed || raw.IsNull() {
		t.mu.Unlock()
		return 0
	}
	ref := t.next
	t.next++
	t.roots[ref] = raw
	t.mu.Unlock()

	t.notify(Event{Ref: ref, Raw: raw, Type: EventRooted})
	return ref
}

// Get retrieves the reference behind a ticket.
func (t *Table) Get(ref Ref) (gcbind.Raw, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	raw, ok := t.roots[ref]
	return raw, ok
}

// Remove unroots a reference and returns (raw, true) if it was held. The
// referent is eligible for reclamation at the next cycle unless rooted
// elsewhere.
func (t *Table) Remove(ref Ref) (gcbind.Raw, bool) {
	t.mu.Lock()
	raw, ok := t.roots[ref]
	if ok {
		delete(t.roots, ref)
	}
	t.mu.Unlock()

	if ok {
		t.notify(Event{Ref: ref, Raw: raw, Type: EventUnrooted})
	}
	return raw, ok
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of held roots.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.roots)
}

// Clear unroots everything.
func (t *Table) Clear() {
	t.mu.Lock()
	cleared := t.roots
	t.roots = make(map[Ref]gcbind.Raw)
	t.mu.Unlock()

	for ref, raw := range cleared {
		t.notify(Event{Ref: ref, Raw: raw, Type: EventUnrooted})
	}
}

// Close unroots everything, unregisters from the collector and stops
// accepting inserts.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.roots = make(map[Ref]gcbind.Raw)
	t.mu.Unlock()

	t.rt.UnregisterRoots(t)
	return nil
}

// ScanRoots implements gcbind.RootScanner.
func (t *Table) ScanRoots(mark func(gcbind.Raw)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, raw := range t.roots {
		mark(raw)
	}
}

func (t *Table) notify(e Event) {
	t.mu.RLock()
	obs := make([]Observer, len(t.observers))
	copy(obs, t.observers)
	t.mu.RUnlock()
	for _, o := range obs {
		o.OnRootEvent(e)
	}
}
