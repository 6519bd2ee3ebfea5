package handle

import (
	"runtime"

	"github.com/google/uuid"

	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/errors"
	"github.com/embedrt/gcbind/ffi"
	"github.com/embedrt/gcbind/memory"
)

// Affinity constrains which worker thread may execute an async task.
type Affinity int

const (
	// ToAny lets any worker pick the task up.
	ToAny Affinity = iota
	// ToWorker guarantees a worker thread executes the task. With a single
	// worker this is equivalent to ToMain.
	ToWorker
	// ToMain routes the task to the designated main worker (worker 0).
	ToMain
)

func (a Affinity) String() string {
	switch a {
	case ToAny:
		return "any"
	case ToWorker:
		return "worker"
	case ToMain:
		return "main"
	default:
		return "unknown"
	}
}

// TaskFunc is the body of an async task. It runs on a worker thread with a
// frame scoped to the task and may suspend at checkpoints.
type TaskFunc func(tc *TaskContext) (any, error)

// BlockingFunc is the body of a blocking task or pool work unit. It runs to
// completion without suspension points.
type BlockingFunc func(fr *memory.Frame) (any, error)

// TaskResult is the terminal outcome of a dispatched task, delivered exactly
// once over the task's oneshot channel.
type TaskResult struct {
	Tag   gcbind.Tag
	Value any
	Err   error
}

func resultOf(value any, err error) TaskResult {
	switch {
	case err == nil:
		return TaskResult{Tag: gcbind.TagOk, Value: value}
	case errors.IsHostPanic(err):
		return TaskResult{Tag: gcbind.TagPanic, Err: err}
	default:
		return TaskResult{Tag: gcbind.TagException, Err: err}
	}
}

// TaskContext is handed to an async task body. It carries the task's frame
// and its cooperative suspension point.
type TaskContext struct {
	frame  *memory.Frame
	rt     ffi.Runtime
	token  *CancelToken
	worker *worker
}

// Frame returns the frame rooting data for this task. Roots created through
// it survive suspensions, because the task resumes on the same thread.
func (tc *TaskContext) Frame() *memory.Frame { return tc.frame }

// Checkpoint is a cooperative suspension point. The task briefly enters the
// GC-safe state so a pending collection can proceed, then observes its
// cancel token. A cancelled task returns the error from its body to
// terminate with a cancellation result.
func (tc *TaskContext) Checkpoint() error {
	if tc.worker != nil {
		tc.worker.state.Store(stateAwaitingYield)
		defer tc.worker.state.Store(stateRunning)
	}

	st := tc.rt.GCSafeEnter()
	runtime.Gosched()
	tc.rt.GCSafeLeave(st)

	if tc.token != nil && tc.token.Cancelled() {
		return errors.Cancelled()
	}
	return nil
}

type msgKind int

const (
	msgTask msgKind = iota
	msgBlockingTask
	msgInclude
	msgErrorColor
)

// envelope is the boxed form of a dispatched message. Exactly the fields
// selected by kind are meaningful. The result channel has capacity 1 so the
// executing worker never blocks resolving it.
type envelope struct {
	id       uuid.UUID
	kind     msgKind
	affinity Affinity

	task     TaskFunc     // msgTask
	blocking BlockingFunc // msgBlockingTask
	path     string       // msgInclude
	enable   bool         // msgErrorColor

	token *CancelToken
	slots int // scope size; 0 means a dynamically growing scope

	result chan TaskResult
}

func newEnvelope(kind msgKind) *envelope {
	return &envelope{
		id:     uuid.New(),
		kind:   kind,
		result: make(chan TaskResult, 1),
	}
}

// TaskOption configures a dispatched task.
type TaskOption func(*envelope)

// WithAffinity routes the task to the queue for a.
func WithAffinity(a Affinity) TaskOption {
	return func(e *envelope) { e.affinity = a }
}

// WithCancelToken attaches a cancel token the task observes at checkpoints.
func WithCancelToken(t *CancelToken) TaskOption {
	return func(e *envelope) { e.token = t }
}

// WithScopeSlots sizes the task's frame to exactly n slots instead of a
// dynamically growing one.
func WithScopeSlots(n int) TaskOption {
	return func(e *envelope) { e.slots = n }
}
