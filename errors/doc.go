// Package errors provides structured error types for the gcbind library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Kind set mirrors the failure taxonomy of the binding layer:
// stack overflows and capacity limits are local programmer errors, foreign
// exceptions are the expected recoverable case, host panics are contained at
// the boundary, and channel errors split into retryable (full) and terminal
// (closed).
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDispatch, errors.KindChannelFull).
//		Path("async", "worker-queue").
//		Detail("queue at capacity (%d)", cap).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.StackOverflow(need, have)
//	err := errors.ForeignException(rendered)
//
// All errors implement the standard error interface and support errors.Is/As.
// The Is* predicates match by Kind regardless of Phase.
package errors
