package ffi

import (
	"github.com/embedrt/gcbind"
)

// Runtime is the foreign runtime's C ABI surface. All methods follow the
// calling conventions documented per method group; none of them is safe to
// call before Init succeeds, except Init and IsInitialized themselves.
//
// Thread registration: the foreign collector only coordinates with threads
// it knows about. Every OS thread that touches the foreign heap must call
// AdoptThread first (with the goroutine locked to that thread) and
// ReleaseThread when done. A registered thread is a mutator and starts in
// the GC-unsafe state: the collector must wait for it to reach a safepoint.
type Runtime interface {
	// Init brings the runtime up. Calling Init on an already-initialized or
	// already-exited runtime is a reported error, never undefined behavior.
	Init() error

	// IsInitialized reports whether Init has succeeded and the runtime has
	// not exited yet.
	IsInitialized() bool

	// AtExitHook runs the runtime's shutdown sequence. After it returns the
	// runtime is exited and cannot be initialized again.
	AtExitHook(code int)

	// AdoptThread registers the calling OS thread as a mutator. The caller
	// must have locked its goroutine to the thread beforehand.
	AdoptThread() error

	// ReleaseThread unregisters the calling mutator thread.
	ReleaseThread()

	// GCSafeEnter transitions the calling mutator into the GC-safe state:
	// the collector may run a cycle without waiting for this thread. It
	// returns an opaque token for the paired GCSafeLeave. Precondition: the
	// calling thread is a registered mutator.
	GCSafeEnter() int32

	// GCSafeLeave restores the state captured by the paired GCSafeEnter,
	// blocking until any in-progress collection finishes.
	GCSafeLeave(state int32)

	// Collect runs a collection cycle. The calling thread counts as being
	// at a safepoint for the duration of the call.
	Collect(mode gcbind.GCMode) error

	// SetGCEnabled toggles the collector and returns the prior setting.
	SetGCEnabled(on bool) bool

	// GCEnabled reports whether the collector is enabled.
	GCEnabled() bool

	// WriteBarrier must be invoked immediately after mutating any pointer
	// field of rooted data, with the owning object and the new child.
	WriteBarrier(owner, child gcbind.Raw)

	// RegisterRoots adds a scanner the collector consults on every cycle.
	RegisterRoots(s gcbind.RootScanner)

	// UnregisterRoots removes a previously registered scanner. Slots owned
	// by an unregistered scanner are never scanned or trusted again.
	UnregisterRoots(s gcbind.RootScanner)

	// Alloc boxes a host value on the foreign heap and returns an unrooted
	// reference to it. The caller must root the reference through a target
	// before the next safepoint.
	Alloc(v any) (gcbind.Raw, error)

	// Deref reads back the boxed value behind a reference. Dereferencing a
	// reclaimed or unknown reference is a reported error.
	Deref(r gcbind.Raw) (any, error)

	// EvalText parses and evaluates foreign source text, returning an
	// unrooted reference to the result. A foreign exception is returned as
	// an error, never propagated as an unwind.
	EvalText(src string) (gcbind.Raw, error)

	// RenderException asks the runtime to render an exception into a
	// displayable message.
	RenderException(err error) string

	// SetErrorColor toggles colored exception rendering. This is a global
	// property of the runtime.
	SetErrorColor(on bool)
}
