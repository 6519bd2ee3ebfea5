// Package memory implements the shadow stack that ties foreign-object
// lifetimes to host lexical scopes.
//
// The collector of the embedded runtime cannot see host stack frames, so any
// foreign reference held only by host code must be registered as a root. The
// shadow stack is that registry: a per-thread arena of pages holding root
// slots, carved into frames with strict stack discipline. A scope lends a
// frame to a closure and guarantees the frame is popped on every exit path,
// including panics; the moment a frame is popped, every slot it owned is
// unrooted and eligible for reuse.
//
// Three scope forms exist. LocalScope takes a declared slot count and fails
// with a stack_overflow error when the closure tries to root more values
// than declared. UnsizedLocalScope is the same contract with a runtime-
// provided count, for callers that cannot know the root count up front.
// Scope provides a dynamically growing frame; rooting through it is
// infallible short of the per-frame capacity limit, because growth appends a
// fresh page and never reallocates a page with live slots.
//
// Values produced by the foreign runtime are written through a Target:
// a Frame roots into a new slot, an Output roots into a reserved slot of an
// ancestor frame (so a nested scope can hand a fresh root back), a
// ReusableSlot overwrites one slot repeatedly, and Unrooted asserts the
// value needs no protection. Go cannot encode scope nesting in the type
// system, so every slot carries a generation stamp; a Value revalidates the
// stamp on each access and fails fast with invalid_handle_state after its
// frame has been popped, instead of reading a recycled slot.
//
// A Stack is owned by exactly one thread and is never shared; the collector
// reads it through ScanRoots only while all mutators are parked at
// safepoints.
package memory
