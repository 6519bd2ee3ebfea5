package handle

import (
	"runtime"

	"github.com/embedrt/gcbind/errors"
	"github.com/embedrt/gcbind/ffi"
)

const defaultQueueCapacity = 32

// Builder configures and starts a handle. One runtime instance supports one
// handle family at a time; the handle that starts it owns its shutdown.
type Builder struct {
	rt       ffi.Runtime
	workers  int
	queueCap int
}

// NewBuilder returns a builder for rt with default settings: one worker and
// a queue capacity of 32 messages.
func NewBuilder(rt ffi.Runtime) *Builder {
	return &Builder{
		rt:       rt,
		workers:  1,
		queueCap: defaultQueueCapacity,
	}
}

// Workers sets the worker thread count for StartAsync and StartPool.
func (b *Builder) Workers(n int) *Builder {
	b.workers = n
	return b
}

// QueueCapacity bounds each of the async handle's message queues.
func (b *Builder) QueueCapacity(n int) *Builder {
	b.queueCap = n
	return b
}

// StartLocal initializes the runtime on the calling thread and returns a
// handle pinned to it. The goroutine is locked to its OS thread until the
// handle is closed.
func (b *Builder) StartLocal() (*LocalHandle, error) {
	runtime.LockOSThread()
	h, err := startLocal(b.rt)
	if err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	return h, nil
}

// StartAsync initializes the runtime and spawns the configured number of
// worker threads servicing the message queues.
func (b *Builder) StartAsync() (*AsyncHandle, error) {
	if b.workers < 1 {
		return nil, errors.InvalidInput(errors.PhaseInit, "async handle needs at least one worker")
	}
	if b.queueCap < 1 {
		return nil, errors.InvalidInput(errors.PhaseInit, "queue capacity must be positive")
	}
	return startAsync(b.rt, b.workers, b.queueCap)
}

// StartPool initializes the runtime and spawns the configured number of
// independent pool workers.
func (b *Builder) StartPool() (*Pool, error) {
	if b.workers < 1 {
		return nil, errors.InvalidInput(errors.PhaseInit, "pool needs at least one worker")
	}
	return startPool(b.rt, b.workers)
}
