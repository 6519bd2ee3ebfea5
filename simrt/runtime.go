package simrt

import (
	"sync"

	"go.uber.org/zap"

	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/errors"
)

type phase int

const (
	phaseNew phase = iota
	phaseActive
	phaseExited
)

// object is one cell on the simulated foreign heap.
type object struct {
	val    any
	marked bool
}

// Stats is a snapshot of collector counters.
type Stats struct {
	Live        int
	Collections uint64
	Reclaimed   uint64
	Barriers    uint64
}

// Runtime is a simulated foreign runtime. It implements ffi.Runtime.
type Runtime struct {
	mu   sync.Mutex
	cond *sync.Cond

	phase     phase
	gcEnabled bool

	mutators    int // registered mutator threads
	unsafeCount int // mutators currently in GC-unsafe (mutator) state
	collecting  bool

	heap    map[gcbind.Raw]*object
	edges   map[gcbind.Raw][]gcbind.Raw // write-barrier edges: owner -> children
	nextRef gcbind.Raw

	scanners []gcbind.RootScanner

	allocsSinceGC int
	autoThreshold int

	collections uint64
	reclaimed   uint64
	barriers    uint64

	errColor bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithAutoThreshold sets how many allocations a GCAuto collection requires
// before it actually runs a cycle.
func WithAutoThreshold(n int) Option {
	return func(r *Runtime) { r.autoThreshold = n }
}

// New creates a simulated runtime. It must still be initialized with Init
// before use, matching the lifecycle of a real embedded runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		heap:          make(map[gcbind.Raw]*object),
		edges:         make(map[gcbind.Raw][]gcbind.Raw),
		nextRef:       1,
		autoThreshold: 1024,
	}
	r.cond = sync.NewCond(&r.mu)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init brings the runtime up. Double-init and init-after-shutdown are
// reported errors.
func (r *Runtime) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.phase {
	case phaseActive:
		return errors.InvalidHandleState(errors.PhaseInit, "runtime already initialized")
	case phaseExited:
		return errors.InvalidHandleState(errors.PhaseInit, "runtime has exited and cannot be restarted")
	}
	r.phase = phaseActive
	r.gcEnabled = true
	return nil
}

// IsInitialized reports whether the runtime is up.
func (r *Runtime) IsInitialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase == phaseActive
}

// AtExitHook shuts the runtime down. The heap is dropped wholesale.
func (r *Runtime) AtExitHook(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != phaseActive {
		return
	}
	r.phase = phaseExited
	r.heap = make(map[gcbind.Raw]*object)
	r.edges = make(map[gcbind.Raw][]gcbind.Raw)
	Logger().Debug("runtime exited", zap.Int("code", code))
}

// AdoptThread registers the calling thread as a mutator in GC-unsafe state.
func (r *Runtime) AdoptThread() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != phaseActive {
		return errors.InvalidHandleState(errors.PhaseInit, "adopting a thread on a runtime that is not active")
	}
	for r.collecting {
		r.cond.Wait()
	}
	r.mutators++
	r.unsafeCount++
	return nil
}

// ReleaseThread unregisters the calling mutator thread.
func (r *Runtime) ReleaseThread() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutators--
	r.unsafeCount--
	r.cond.Broadcast()
}

// GCSafeEnter parks the calling mutator at a safepoint: a collection cycle
// no longer waits for this thread.
func (r *Runtime) GCSafeEnter() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsafeCount--
	r.cond.Broadcast()
	return 1
}

// GCSafeLeave resumes the calling thread as a mutator, blocking until any
// in-progress collection finishes.
func (r *Runtime) GCSafeLeave(state int32) {
	if state != 1 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.collecting {
		r.cond.Wait()
	}
	r.unsafeCount++
}

// SetGCEnabled toggles the collector and returns the prior setting.
func (r *Runtime) SetGCEnabled(on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prior := r.gcEnabled
	r.gcEnabled = on
	return prior
}

// GCEnabled reports whether the collector is enabled.
func (r *Runtime) GCEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gcEnabled
}

// WriteBarrier records that child is reachable from owner. Must be called
// immediately after mutating any pointer field of rooted data.
func (r *Runtime) WriteBarrier(owner, child gcbind.Raw) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner.IsNull() || child.IsNull() {
		return
	}
	r.edges[owner] = append(r.edges[owner], child)
	r.barriers++
}

// RegisterRoots adds a scanner consulted on every collection cycle.
func (r *Runtime) RegisterRoots(s gcbind.RootScanner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanners = append(r.scanners, s)
}

// UnregisterRoots removes a scanner. Its slots are never trusted again.
func (r *Runtime) UnregisterRoots(s gcbind.RootScanner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, reg := range r.scanners {
		if reg == s {
			r.scanners = append(r.scanners[:i], r.scanners[i+1:]...)
			return
		}
	}
}

// Collect runs a collection cycle. The calling thread counts as being at a
// safepoint for the duration of the call; every other registered mutator
// must reach one before the cycle starts.
func (r *Runtime) Collect(mode gcbind.GCMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != phaseActive {
		return errors.InvalidHandleState(errors.PhaseRuntime, "collect on a runtime that is not active")
	}
	if !r.gcEnabled {
		return nil
	}
	if mode == gcbind.GCAuto && r.allocsSinceGC < r.autoThreshold {
		return nil
	}

	for r.collecting {
		r.cond.Wait()
	}
	r.collecting = true
	// The caller is one of the unsafe mutators; wait for all others.
	for r.unsafeCount > 1 {
		r.cond.Wait()
	}

	live := r.mark()
	swept := r.sweep()

	r.allocsSinceGC = 0
	r.collections++
	r.reclaimed += uint64(swept)
	r.collecting = false
	r.cond.Broadcast()

	Logger().Debug("collection cycle",
		zap.String("mode", mode.String()),
		zap.Int("live", live),
		zap.Int("reclaimed", swept),
	)
	return nil
}

// mark traces from every registered scanner through write-barrier edges.
// Called with r.mu held while the world is stopped. The trace keeps an
// explicit worklist so a long chain of barrier edges never grows the host
// stack.
func (r *Runtime) mark() int {
	for _, obj := range r.heap {
		obj.marked = false
	}

	var pending []gcbind.Raw
	for _, s := range r.scanners {
		s.ScanRoots(func(raw gcbind.Raw) {
			pending = append(pending, raw)
		})
	}

	live := 0
	for len(pending) > 0 {
		raw := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		obj, ok := r.heap[raw]
		if !ok || obj.marked {
			continue
		}
		obj.marked = true
		live++
		pending = append(pending, r.edges[raw]...)
	}
	return live
}

// sweep reclaims every unmarked object. Called with r.mu held.
func (r *Runtime) sweep() int {
	swept := 0
	for raw, obj := range r.heap {
		if !obj.marked {
			delete(r.heap, raw)
			delete(r.edges, raw)
			swept++
		}
	}
	return swept
}

// Alloc boxes a host value on the heap and returns an unrooted reference.
func (r *Runtime) Alloc(v any) (gcbind.Raw, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != phaseActive {
		return gcbind.RawNull, errors.InvalidHandleState(errors.PhaseRuntime, "alloc on a runtime that is not active")
	}
	ref := r.nextRef
	r.nextRef++
	r.heap[ref] = &object{val: v}
	r.allocsSinceGC++
	return ref, nil
}

// Deref reads back the boxed value behind a reference.
func (r *Runtime) Deref(raw gcbind.Raw) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if raw.IsNull() {
		return nil, nil
	}
	obj, ok := r.heap[raw]
	if !ok {
		return nil, errors.Dangling(uint64(raw))
	}
	return obj.val, nil
}

// Stats returns a snapshot of collector counters.
func (r *Runtime) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Live:        len(r.heap),
		Collections: r.collections,
		Reclaimed:   r.reclaimed,
		Barriers:    r.barriers,
	}
}

// Live reports whether raw still points at a heap object. Test helper.
func (r *Runtime) Live(raw gcbind.Raw) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.heap[raw]
	return ok
}
