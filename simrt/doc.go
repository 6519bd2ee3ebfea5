// Package simrt is a reference implementation of the ffi.Runtime surface:
// an in-process foreign runtime with a traced heap, a safepoint protocol and
// a small expression language.
//
// It exists so the host-side machinery (shadow stack, GC-safe locks, handle
// dispatch) can be exercised end to end without an external runtime
// installation. The collector is a stop-the-world mark-sweep over the
// registered root scanners: anything not reachable from a live root slot,
// the global table or a recorded write-barrier edge is reclaimed, which
// makes rooting mistakes observable as dangling-reference errors instead of
// silent corruption.
//
// The expression language understood by EvalText covers what the binding
// layer needs to demonstrate: integer, float and string arithmetic,
// `error("message")` to raise a foreign exception, `nothing`, and
// `using Name` as a no-op import. Statements are separated by semicolons
// and evaluate to the last result.
//
// Every Runtime instance is an independent heap with its own lifecycle, so
// tests can start and shut down as many as they need in one process.
package simrt
