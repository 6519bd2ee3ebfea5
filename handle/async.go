package handle

import (
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/errors"
	"github.com/embedrt/gcbind/ffi"
	"github.com/embedrt/gcbind/memory"
)

// Worker execution states, observable while diagnosing a stuck queue.
const (
	stateIdle int32 = iota
	stateRunning
	stateAwaitingYield
)

// worker is one dedicated OS thread servicing the handle's queues. Worker 0
// is the main worker: it drains the main queue to empty before competing for
// shared work, and it is the only consumer of that queue.
type worker struct {
	idx   int
	h     *AsyncHandle
	state atomic.Int32
}

// AsyncHandle runs tasks on dedicated worker threads fed by bounded queues.
// It is safe for concurrent use from any goroutine.
type AsyncHandle struct {
	rt ffi.Runtime

	anyQ    chan *envelope
	workerQ chan *envelope
	mainQ   chan *envelope

	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	g       *errgroup.Group
	workers []*worker
}

func startAsync(rt ffi.Runtime, n, queueCap int) (*AsyncHandle, error) {
	if err := rt.Init(); err != nil {
		return nil, err
	}

	h := &AsyncHandle{
		rt:      rt,
		anyQ:    make(chan *envelope, queueCap),
		workerQ: make(chan *envelope, queueCap),
		mainQ:   make(chan *envelope, queueCap),
		done:    make(chan struct{}),
		g:       new(errgroup.Group),
	}

	ready := make(chan error, n)
	for i := 0; i < n; i++ {
		w := &worker{idx: i, h: h}
		h.workers = append(h.workers, w)
		h.g.Go(func() error { return w.run(ready) })
	}

	var startErr error
	for i := 0; i < n; i++ {
		startErr = multierr.Append(startErr, <-ready)
	}
	if startErr != nil {
		close(h.done)
		_ = h.g.Wait()
		rt.AtExitHook(1)
		return nil, startErr
	}

	Logger().Debug("async handle started",
		zap.Int("workers", n),
		zap.Int("queue_capacity", queueCap),
	)
	return h, nil
}

// Task stages an async task for dispatch.
func (h *AsyncHandle) Task(fn TaskFunc, opts ...TaskOption) *Dispatch {
	env := newEnvelope(msgTask)
	env.task = fn
	for _, opt := range opts {
		opt(env)
	}
	return &Dispatch{h: h, env: env}
}

// BlockingTask stages a task that runs to completion without suspension
// points.
func (h *AsyncHandle) BlockingTask(fn BlockingFunc, opts ...TaskOption) *Dispatch {
	env := newEnvelope(msgBlockingTask)
	env.blocking = fn
	for _, opt := range opts {
		opt(env)
	}
	return &Dispatch{h: h, env: env}
}

// Include stages evaluation of a source file. The file must exist at staging
// time; a missing file is a not_found error before anything is enqueued.
func (h *AsyncHandle) Include(path string, opts ...TaskOption) (*Dispatch, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.NotFound(errors.PhaseEval, "source file", path)
	}
	env := newEnvelope(msgInclude)
	env.path = path
	for _, opt := range opts {
		opt(env)
	}
	return &Dispatch{h: h, env: env}, nil
}

// ErrorColor stages a control message toggling colored exception rendering.
func (h *AsyncHandle) ErrorColor(on bool) *Dispatch {
	env := newEnvelope(msgErrorColor)
	env.enable = on
	return &Dispatch{h: h, env: env}
}

// NWorkers returns the worker thread count.
func (h *AsyncHandle) NWorkers() int { return len(h.workers) }

// WorkerState reports worker i's current execution state: "idle", "running"
// or "awaiting_yield" (suspended at a checkpoint).
func (h *AsyncHandle) WorkerState(i int) string {
	switch h.workers[i].state.Load() {
	case stateRunning:
		return "running"
	case stateAwaitingYield:
		return "awaiting_yield"
	default:
		return "idle"
	}
}

// IsClosed reports whether Close has been called.
func (h *AsyncHandle) IsClosed() bool { return h.closed.Load() }

func (h *AsyncHandle) queueFor(a Affinity) chan *envelope {
	switch a {
	case ToWorker:
		return h.workerQ
	case ToMain:
		return h.mainQ
	default:
		return h.anyQ
	}
}

// Close stops the workers, resolves every undelivered message with a
// channel_closed result, and shuts the runtime down. Safe to call more than
// once; later calls return the first close's error.
func (h *AsyncHandle) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.done)
		h.closeErr = h.g.Wait()
		// A sender racing this close can still win the enqueue after the
		// workers drained on their way out; sweep the queues once more so
		// no pending result is left unresolved.
		h.drainAll()
		h.rt.AtExitHook(0)
		Logger().Debug("async handle closed")
	})
	return h.closeErr
}

func (h *AsyncHandle) drainAll() {
	for _, q := range []chan *envelope{h.mainQ, h.anyQ, h.workerQ} {
		for {
			var env *envelope
			select {
			case env = <-q:
			default:
			}
			if env == nil {
				break
			}
			rejectClosed(env)
		}
	}
}

func (w *worker) run(ready chan<- error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	rt := w.h.rt
	if err := rt.AdoptThread(); err != nil {
		ready <- err
		return err
	}

	stack := memory.NewStack(rt)
	rt.RegisterRoots(stack)
	ready <- nil
	Logger().Debug("worker started", zap.Int("worker", w.idx))

	for {
		w.state.Store(stateIdle)
		env, ok := w.take()
		if !ok {
			break
		}
		w.execute(stack, env)
	}
	w.drain()

	rt.UnregisterRoots(stack)
	err := stack.Retire()
	rt.ReleaseThread()
	Logger().Debug("worker stopped", zap.Int("worker", w.idx))
	return err
}

// take blocks for the next message. The main worker checks its own queue
// first so main-affinity tasks never starve behind shared work. The idle
// wait parks the thread at a safepoint: an empty queue is a suspension
// point, and a collection cycle must never stall on an idle worker.
func (w *worker) take() (*envelope, bool) {
	h := w.h
	if w.idx == 0 {
		select {
		case env := <-h.mainQ:
			return env, true
		default:
		}
	}

	state := h.rt.GCSafeEnter()
	defer h.rt.GCSafeLeave(state)

	if w.idx == 0 {
		select {
		case env := <-h.mainQ:
			return env, true
		case env := <-h.anyQ:
			return env, true
		case env := <-h.workerQ:
			return env, true
		case <-h.done:
			return nil, false
		}
	}
	select {
	case env := <-h.anyQ:
		return env, true
	case env := <-h.workerQ:
		return env, true
	case <-h.done:
		return nil, false
	}
}

// drain resolves messages left in the queues after shutdown so no sender
// waits forever on a result that will never be produced.
func (w *worker) drain() {
	h := w.h
	for {
		var env *envelope
		select {
		case env = <-h.anyQ:
		case env = <-h.workerQ:
		default:
		}
		if env == nil {
			break
		}
		rejectClosed(env)
	}
	if w.idx != 0 {
		return
	}
	for {
		select {
		case env := <-h.mainQ:
			rejectClosed(env)
		default:
			return
		}
	}
}

// rejectClosed resolves an undeliverable message so no waiter blocks on a
// result that will never be produced.
func rejectClosed(env *envelope) {
	env.result <- TaskResult{
		Tag: gcbind.TagException,
		Err: errors.ChannelClosed(errors.PhaseDispatch),
	}
}

func (w *worker) execute(stack *memory.Stack, env *envelope) {
	w.state.Store(stateRunning)
	Logger().Debug("executing message",
		zap.String("id", env.id.String()),
		zap.Int("worker", w.idx),
		zap.String("affinity", env.affinity.String()),
	)

	var res TaskResult
	switch env.kind {
	case msgTask:
		res = w.runTask(stack, env)
	case msgBlockingTask:
		res = w.runBlocking(stack, env)
	case msgInclude:
		res = w.runInclude(stack, env)
	case msgErrorColor:
		w.h.rt.SetErrorColor(env.enable)
		res = TaskResult{Tag: gcbind.TagOk}
	}
	env.result <- res
}

// taskScope picks the frame shape the message asked for: a fixed slot count
// when given, a dynamically growing frame otherwise.
func taskScope(stack *memory.Stack, slots int) func(func(*memory.Frame) error) error {
	if slots > 0 {
		return func(f func(*memory.Frame) error) error {
			return stack.UnsizedLocalScope(slots, f)
		}
	}
	return stack.Scope
}

func (w *worker) runTask(stack *memory.Stack, env *envelope) TaskResult {
	var out any
	err := taskScope(stack, env.slots)(func(fr *memory.Frame) error {
		if env.token != nil && env.token.Cancelled() {
			return errors.Cancelled()
		}
		tc := &TaskContext{frame: fr, rt: w.h.rt, token: env.token, worker: w}
		v, err := ffi.CatchValue(func() (any, error) {
			return env.task(tc)
		})
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return resultOf(out, err)
}

func (w *worker) runBlocking(stack *memory.Stack, env *envelope) TaskResult {
	var out any
	err := taskScope(stack, env.slots)(func(fr *memory.Frame) error {
		v, err := ffi.CatchValue(func() (any, error) {
			return env.blocking(fr)
		})
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return resultOf(out, err)
}

func (w *worker) runInclude(stack *memory.Stack, env *envelope) TaskResult {
	data, err := os.ReadFile(env.path)
	if err != nil {
		return resultOf(nil, errors.NotFound(errors.PhaseEval, "source file", env.path))
	}

	var out any
	err = stack.LocalScope(1, func(fr *memory.Frame) error {
		v, err := memory.Eval(fr, string(data))
		if err != nil {
			return err
		}
		unboxed, err := v.Unbox()
		if err != nil {
			return err
		}
		out = unboxed
		return nil
	})
	return resultOf(out, err)
}
