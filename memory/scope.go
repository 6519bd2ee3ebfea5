package memory

import (
	"github.com/embedrt/gcbind/errors"
)

// Scope runs f with a dynamically growing frame. Rooting through the frame
// is infallible short of the per-frame capacity limit: growth appends a new
// page and never reallocates a page with live slots. The frame is popped on
// every exit path, including panics unwinding out of f.
func (s *Stack) Scope(f func(*Frame) error) error {
	fr, err := s.pushFrame(-1)
	if err != nil {
		return err
	}
	defer s.popFrame(fr)
	return f(fr)
}

// LocalScope runs f with a frame of exactly n slots. The count is part of
// the caller's contract: rooting an (n+1)th value fails with a
// stack_overflow error and never writes outside the frame's slot range.
func (s *Stack) LocalScope(n int, f func(*Frame) error) error {
	if n < 0 {
		return errors.InvalidInput(errors.PhaseMemory, "negative slot count")
	}
	fr, err := s.pushFrame(n)
	if err != nil {
		return err
	}
	defer s.popFrame(fr)
	return f(fr)
}

// UnsizedLocalScope is LocalScope for a slot count only known at runtime.
// This path reserves the whole range up front and guarantees every slot is
// zero-initialized before f runs; it trades the static-count ergonomics of
// LocalScope for flexibility and is the slower of the two.
func (s *Stack) UnsizedLocalScope(size int, f func(*Frame) error) error {
	if size < 0 {
		return errors.InvalidInput(errors.PhaseMemory, "negative slot count")
	}
	fr, err := s.pushFrame(size)
	if err != nil {
		return err
	}
	defer s.popFrame(fr)

	// The slot range was zeroed when its previous owner was popped, and
	// fresh pages start zeroed; verify the invariant cheaply in the only
	// path whose size the compiler cannot see.
	for _, sl := range fr.slots {
		if !sl.raw.IsNull() {
			return errors.InvalidHandleState(errors.PhaseMemory, "slot handed to a fresh frame was not zeroed")
		}
	}
	return f(fr)
}
