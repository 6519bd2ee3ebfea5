// Package gcsync provides synchronization primitives that park in GC-safe
// state.
//
// A mutator thread that blocks on an ordinary lock stays GC-unsafe while
// parked: a collection cycle initiated by another thread stalls waiting for
// it to reach a safepoint it will not reach until the lock is released: a
// deadlock between the collector and the lock. The primitives here wrap the
// blocking wait: mark the thread GC-safe, park, mark it GC-unsafe again and
// resume as a mutator.
//
// Precondition for every blocking operation in this package: the calling
// thread is a registered mutator (ffi.Runtime.AdoptThread). Calling from an
// unregistered thread is undefined. Fairness is that of the wrapped
// standard-library primitive and is preserved by the wrappers.
package gcsync
