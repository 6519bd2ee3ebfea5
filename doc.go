// Package gcbind embeds a foreign, garbage-collected language runtime in a
// Go host process and lets host code call into that runtime safely.
//
// The foreign runtime owns a traced heap the Go compiler cannot see through:
// any foreign object referenced only from host frames can be reclaimed by a
// collection cycle unless the binding layer registers it as a root. The
// library is organized around that problem:
//
//	gcbind/           Root package with the shared ABI vocabulary
//	├── errors/       Structured error types for the binding layer
//	├── ffi/          The foreign runtime's C ABI surface and trampoline
//	├── memory/       Shadow stack: pages, frames, scopes, targets
//	├── gcsync/       Locks that park in GC-safe state
//	├── handle/       Local, async, and pooled runtime handles
//	├── global/       Process-global root table
//	├── simrt/        Reference in-process runtime used for tests and demos
//	└── cmd/gcrun/    CLI for evaluating foreign source files
//
// # Quick Start
//
// Start the runtime on the current thread and root a value across a
// collection cycle:
//
//	h, err := handle.NewBuilder(rt).StartLocal()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Close()
//
//	err = h.LocalScope(1, func(fr *memory.Frame) error {
//	    v, err := memory.NewValue(fr, int64(42))
//	    if err != nil {
//	        return err
//	    }
//	    if err := h.Collect(gcbind.GCFull); err != nil {
//	        return err
//	    }
//	    got, err := v.Unbox() // still 42, the frame kept it rooted
//	    ...
//	})
//
// # Rooting Model
//
// Every operation that produces a foreign value writes through a
// memory.Target. Frames root values for the duration of their scope,
// Outputs let a nested scope hand a fresh root back to an ancestor frame,
// and Unrooted is a caller-side assertion that no protection is needed.
// A value whose frame has been popped fails fast on access instead of
// reading a recycled slot.
//
// # Thread Model
//
// A LocalHandle owns the only mutator thread. An AsyncHandle services a
// bounded message queue with dedicated worker threads. A Pool runs N
// independent local handles, each pinned to its own OS thread. Blocking
// waits go through gcsync so a collection triggered on another thread is
// never stalled by a parked mutator.
package gcbind
