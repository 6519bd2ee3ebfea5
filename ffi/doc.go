// Package ffi declares the minimal C ABI surface of the foreign runtime that
// the binding layer depends on, and the trampoline used to cross it.
//
// The Runtime interface is the seam between the host-side machinery (shadow
// stack, handles, GC-safe locks) and a concrete embedded runtime. A real
// deployment implements it with cgo against the runtime's C API; the simrt
// package provides a pure-Go reference implementation with the same
// observable semantics, used by the tests and the CLI.
//
// Calls that can fail on either side of the boundary go through Catch, which
// converts foreign exceptions and host panics into a tagged Outcome instead
// of letting either unwind across stack frames the other side cannot
// traverse.
package ffi
