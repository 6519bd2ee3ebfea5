package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the binding layer the error occurred
type Phase string

const (
	PhaseInit     Phase = "init"     // runtime startup and shutdown
	PhaseMemory   Phase = "memory"   // shadow stack and rooting
	PhaseDispatch Phase = "dispatch" // message queues and workers
	PhaseEval     Phase = "eval"     // evaluating foreign source text
	PhaseCall     Phase = "call"     // crossing the native boundary
	PhaseRuntime  Phase = "runtime"  // collector and heap operations
)

// Kind categorizes the error
type Kind string

const (
	// KindStackOverflow: a frame's declared slot budget was exceeded. The
	// requesting scope fails; adjacent slots are never touched.
	KindStackOverflow Kind = "stack_overflow"
	// KindCapacity: a single frame requested more slots than any reasonable
	// page can hold.
	KindCapacity Kind = "capacity"
	// KindInvalidHandleState: double-init, use-after-shutdown, or wrong-thread
	// use of a handle, frame, or value.
	KindInvalidHandleState Kind = "invalid_handle_state"
	// KindForeignException: the foreign side raised an error during a call.
	KindForeignException Kind = "foreign_exception"
	// KindHostPanic: a host panic was caught at the boundary trampoline.
	KindHostPanic Kind = "host_panic"
	// KindChannelFull: send on a bounded channel at capacity. Retryable.
	KindChannelFull Kind = "channel_full"
	// KindChannelClosed: send or receive on a closed channel. Terminal.
	KindChannelClosed Kind = "channel_closed"
	// KindCancelled: a task observed its cancellation token at a checkpoint.
	KindCancelled Kind = "cancelled"
	KindNotFound  Kind = "not_found"
	KindDangling  Kind = "dangling_reference"
	KindInvalid   Kind = "invalid_input"
)

// Error is the structured error type used throughout the binding layer
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Retryable reports whether the operation that produced this error may be
// retried as-is. Only backpressure conditions qualify.
func (e *Error) Retryable() bool {
	return e.Kind == KindChannelFull
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// StackOverflow creates a stack overflow error for a frame whose slot budget
// was exceeded.
func StackOverflow(need, have int) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindStackOverflow,
		Detail: fmt.Sprintf("frame is full: %d slots requested, %d declared", need, have),
		Value:  need,
	}
}

// Capacity creates a capacity error for an unreasonable frame size request.
func Capacity(requested, max int) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindCapacity,
		Detail: fmt.Sprintf("requested %d slots, limit is %d", requested, max),
		Value:  requested,
	}
}

// InvalidHandleState creates an invalid handle state error.
func InvalidHandleState(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidHandleState,
		Detail: detail,
	}
}

// ForeignException creates an error for an exception raised by the foreign
// runtime. The message is the runtime's own rendering of the exception.
func ForeignException(message string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindForeignException,
		Detail: message,
	}
}

// HostPanic creates an error for a host panic caught at the boundary. The
// recovered panic value is preserved so the caller can decide whether to
// re-panic locally.
func HostPanic(recovered any) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindHostPanic,
		Detail: fmt.Sprintf("host panic crossed the native boundary: %v", recovered),
		Value:  recovered,
	}
}

// ChannelFull creates a retryable backpressure error.
func ChannelFull(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindChannelFull,
		Detail: "queue at capacity",
	}
}

// ChannelClosed creates a terminal channel error.
func ChannelClosed(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindChannelClosed,
		Detail: "channel closed",
	}
}

// Cancelled creates an error for a task that observed its cancellation token.
func Cancelled() *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindCancelled,
		Detail: "task cancelled at checkpoint",
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Dangling creates an error for a foreign reference whose referent has been
// reclaimed or never existed.
func Dangling(ref uint64) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindDangling,
		Detail: fmt.Sprintf("reference 0x%x does not point to a live object", ref),
		Value:  ref,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalid,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
