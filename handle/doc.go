// Package handle provides the execution contexts for the embedded runtime.
//
// Three handle shapes cover the dispatch modes:
//
//   - LocalHandle owns the only mutator thread. All calls into the runtime
//     happen on the thread that started it; dropping the handle shuts the
//     runtime down.
//   - AsyncHandle runs dedicated worker threads that service bounded message
//     queues. Tasks are shipped as boxed messages, executed inside a scope
//     sized per task, and resolved exactly once over a oneshot channel. Task
//     bodies may suspend cooperatively at checkpoints without losing rooted
//     state, because a frame spans a suspension on the same thread (it can
//     never span a true thread handoff).
//   - Pool runs N independent local handles, each pinned to its own OS
//     thread, with blocking spawn/join of work units and at most one
//     in-flight task per worker.
//
// Task affinity (ToAny, ToWorker, ToMain) constrains which thread may
// execute an async task. The three affinities map to three queues; worker 0
// is the designated main worker and drains the main queue to empty before
// taking from the shared queues, while other workers never see the main
// queue.
//
// Backpressure is explicit: queues are bounded, TrySend on a full queue
// returns a retryable channel_full error, and nothing is ever dropped
// silently. Cancellation is cooperative and non-preemptive: a cancelled
// task runs to its next checkpoint and then terminates with a cancellation
// result.
package handle
