package handle

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/embedrt/gcbind/errors"
	"github.com/embedrt/gcbind/ffi"
	"github.com/embedrt/gcbind/memory"
)

// poolJob is one unit of work and its oneshot result channel.
type poolJob struct {
	fn     BlockingFunc
	result chan TaskResult
}

// poolWorker is one pinned OS thread with its own shadow stack. Its queue is
// unbuffered, so a worker holds at most one in-flight job.
type poolWorker struct {
	idx     int
	queue   chan *poolJob
	pending atomic.Int32
}

// Pool runs independent workers with blocking spawn/join of work units. Work
// is placed on the least-loaded worker unless the caller pins it.
type Pool struct {
	rt ffi.Runtime

	workers []*poolWorker
	done    chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	g         *errgroup.Group
}

func startPool(rt ffi.Runtime, n int) (*Pool, error) {
	if err := rt.Init(); err != nil {
		return nil, err
	}

	p := &Pool{
		rt:   rt,
		done: make(chan struct{}),
		g:    new(errgroup.Group),
	}

	ready := make(chan error, n)
	for i := 0; i < n; i++ {
		w := &poolWorker{idx: i, queue: make(chan *poolJob)}
		p.workers = append(p.workers, w)
		p.g.Go(func() error { return p.runWorker(w, ready) })
	}

	var startErr error
	for i := 0; i < n; i++ {
		startErr = multierr.Append(startErr, <-ready)
	}
	if startErr != nil {
		close(p.done)
		_ = p.g.Wait()
		rt.AtExitHook(1)
		return nil, startErr
	}

	Logger().Debug("pool started", zap.Int("workers", n))
	return p, nil
}

// NWorkers returns the pool's worker count.
func (p *Pool) NWorkers() int { return len(p.workers) }

// Spawn places fn on the least-loaded worker, blocking until that worker
// accepts it.
func (p *Pool) Spawn(fn BlockingFunc) (*Join, error) {
	return p.spawn(p.leastLoaded(), fn)
}

// SpawnOn places fn on a specific worker.
func (p *Pool) SpawnOn(idx int, fn BlockingFunc) (*Join, error) {
	if idx < 0 || idx >= len(p.workers) {
		return nil, errors.InvalidInput(errors.PhaseDispatch, "worker index out of range")
	}
	return p.spawn(p.workers[idx], fn)
}

func (p *Pool) spawn(w *poolWorker, fn BlockingFunc) (*Join, error) {
	if p.closed.Load() {
		return nil, errors.ChannelClosed(errors.PhaseDispatch)
	}

	job := &poolJob{fn: fn, result: make(chan TaskResult, 1)}
	w.pending.Add(1)
	select {
	case w.queue <- job:
		return &Join{result: job.result}, nil
	case <-p.done:
		w.pending.Add(-1)
		return nil, errors.ChannelClosed(errors.PhaseDispatch)
	}
}

// leastLoaded picks the worker with the fewest pending jobs, lowest index
// winning ties.
func (p *Pool) leastLoaded() *poolWorker {
	best := p.workers[0]
	for _, w := range p.workers[1:] {
		if w.pending.Load() < best.pending.Load() {
			best = w
		}
	}
	return best
}

// Close stops every worker and shuts the runtime down. Safe to call more
// than once.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
		p.closeErr = p.g.Wait()
		p.rt.AtExitHook(0)
		Logger().Debug("pool closed")
	})
	return p.closeErr
}

func (p *Pool) runWorker(w *poolWorker, ready chan<- error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := p.rt.AdoptThread(); err != nil {
		ready <- err
		return err
	}

	stack := memory.NewStack(p.rt)
	p.rt.RegisterRoots(stack)
	ready <- nil
	Logger().Debug("pool worker started", zap.Int("worker", w.idx))

	for {
		job, ok := p.takeJob(w)
		if !ok {
			break
		}
		p.executeJob(stack, w, job)
	}

	p.drainWorker(w)
	p.rt.UnregisterRoots(stack)
	err := stack.Retire()
	p.rt.ReleaseThread()
	Logger().Debug("pool worker stopped", zap.Int("worker", w.idx))
	return err
}

// takeJob blocks for the next job. The idle wait parks the thread at a
// safepoint so a collection triggered on a sibling worker never stalls on
// this one.
func (p *Pool) takeJob(w *poolWorker) (*poolJob, bool) {
	select {
	case job := <-w.queue:
		return job, true
	case <-p.done:
		return nil, false
	default:
	}

	state := p.rt.GCSafeEnter()
	defer p.rt.GCSafeLeave(state)
	select {
	case job := <-w.queue:
		return job, true
	case <-p.done:
		return nil, false
	}
}

func (p *Pool) executeJob(stack *memory.Stack, w *poolWorker, job *poolJob) {
	defer w.pending.Add(-1)

	var out any
	err := stack.Scope(func(fr *memory.Frame) error {
		v, err := ffi.CatchValue(func() (any, error) {
			return job.fn(fr)
		})
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	job.result <- resultOf(out, err)
}

// drainWorker rejects jobs that raced past the closed flag into the queue.
func (p *Pool) drainWorker(w *poolWorker) {
	for {
		select {
		case job := <-w.queue:
			w.pending.Add(-1)
			job.result <- resultOf(nil, errors.ChannelClosed(errors.PhaseDispatch))
		default:
			return
		}
	}
}

// Join is the receiving end of a spawned work unit's result.
type Join struct {
	result <-chan TaskResult
}

// Wait blocks until the work unit resolves or ctx is done.
func (j *Join) Wait(ctx context.Context) (any, error) {
	select {
	case res := <-j.result:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
