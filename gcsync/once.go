package gcsync

import (
	"sync/atomic"

	"github.com/embedrt/gcbind/ffi"
)

// Once runs an initializer exactly once. Threads that lose the race to
// initialize park in GC-safe state while they wait; the winning thread runs
// the initializer as a mutator.
type Once struct {
	done atomic.Bool
	mu   Mutex
}

// NewOnce returns a GC-safe once cell coordinating with rt's collector.
func NewOnce(rt ffi.Runtime) *Once {
	return &Once{mu: Mutex{rt: rt}}
}

// Do invokes f if and only if no Do call on this Once has completed before.
// It returns once f has completed, whether in this call or another.
func (o *Once) Do(f func()) {
	if o.done.Load() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.done.Load() {
		defer o.done.Store(true)
		f()
	}
}

// Done reports whether the initializer has completed.
func (o *Once) Done() bool {
	return o.done.Load()
}
