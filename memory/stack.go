package memory

import (
	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/errors"
	"github.com/embedrt/gcbind/ffi"
)

// Stack is a per-thread shadow stack: an arena of pages carved into frames.
// It is created when a runtime handle starts, registered with the collector
// for the handle's lifetime, and retired at handle shutdown. A Stack must
// only ever be touched by the thread that owns it.
type Stack struct {
	rt      ffi.Runtime
	pages   []*page
	cur     int // index of the page holding the cursor
	top     *Frame
	genCtr  uint64
	retired bool
}

// NewStack creates an empty shadow stack backed by rt.
func NewStack(rt ffi.Runtime) *Stack {
	return &Stack{
		rt:    rt,
		pages: []*page{newPage(MinPageSize)},
	}
}

// Runtime returns the foreign runtime this stack roots data for.
func (s *Stack) Runtime() ffi.Runtime { return s.rt }

// nextGen returns a fresh generation stamp. Stamps start at 1 so a zeroed
// slot never matches a live Value.
func (s *Stack) nextGen() uint64 {
	s.genCtr++
	return s.genCtr
}

// takeContiguous reserves n slots in a single page, appending a new page if
// the active one lacks capacity. The in-use page is never reallocated, so
// slot addresses handed to frames stay stable.
func (s *Stack) takeContiguous(n int) ([]*slot, error) {
	if n > MaxFrameSlots {
		return nil, errors.Capacity(n, MaxFrameSlots)
	}

	p := s.pages[s.cur]
	if p.free() < n {
		// Try the next retained page before allocating a fresh one; pages
		// beyond the cursor are empty leftovers from deeper excursions.
		if s.cur+1 < len(s.pages) && s.pages[s.cur+1].capacity() >= n {
			s.cur++
		} else {
			// Drop empty trailing pages that are too small, then append.
			s.pages = s.pages[:s.cur+1]
			s.pages = append(s.pages, newPage(n))
			s.cur++
		}
		p = s.pages[s.cur]
	}

	base := p.used
	p.used += n
	out := make([]*slot, n)
	for i := 0; i < n; i++ {
		out[i] = &p.slots[base+i]
	}
	return out, nil
}

// takeOne reserves a single slot, crossing into a new page if needed.
func (s *Stack) takeOne() (*slot, error) {
	slots, err := s.takeContiguous(1)
	if err != nil {
		return nil, err
	}
	return slots[0], nil
}

// cursor captures the current allocation position.
func (s *Stack) cursor() (pageIdx, used int) {
	return s.cur, s.pages[s.cur].used
}

// rewind releases every slot taken after the captured cursor.
func (s *Stack) rewind(pageIdx, used int) {
	for i := len(s.pages) - 1; i > pageIdx; i-- {
		s.pages[i].release(0)
	}
	s.pages[pageIdx].release(used)
	s.cur = pageIdx
}

// pushFrame creates a frame at the current cursor. capacity < 0 means the
// frame grows dynamically.
func (s *Stack) pushFrame(capacity int) (*Frame, error) {
	if s.retired {
		return nil, errors.InvalidHandleState(errors.PhaseMemory, "stack has been retired")
	}

	fr := &Frame{
		stack:    s,
		capacity: capacity,
		gen:      s.nextGen(),
		parent:   s.top,
	}
	fr.prevPage, fr.prevUsed = s.cursor()

	if capacity >= 0 {
		slots, err := s.takeContiguous(capacity)
		if err != nil {
			return nil, err
		}
		fr.slots = slots
	}

	s.top = fr
	return fr, nil
}

// popFrame releases fr and everything rooted after it. Safe to call more
// than once; only the first call has an effect. Frames are popped strictly
// in reverse creation order, which the scope functions enforce with defers.
func (s *Stack) popFrame(fr *Frame) {
	if fr.popped {
		return
	}
	// A child that escaped its scope would violate LIFO; unwind to fr by
	// popping everything above it first.
	for s.top != nil && s.top != fr {
		child := s.top
		child.popped = true
		s.top = child.parent
	}
	fr.popped = true
	s.rewind(fr.prevPage, fr.prevUsed)
	s.top = fr.parent
}

// LiveRoots counts the non-null slots currently owned by live frames.
func (s *Stack) LiveRoots() int {
	n := 0
	for i := 0; i <= s.cur && i < len(s.pages); i++ {
		p := s.pages[i]
		for j := 0; j < p.used; j++ {
			if !p.slots[j].raw.IsNull() {
				n++
			}
		}
	}
	return n
}

// LiveSlots counts every slot owned by live frames, rooted or not.
func (s *Stack) LiveSlots() int {
	n := 0
	for i := 0; i <= s.cur && i < len(s.pages); i++ {
		n += s.pages[i].used
	}
	return n
}

// Pages reports how many pages back the stack.
func (s *Stack) Pages() int { return len(s.pages) }

// ScanRoots enumerates every root in a live frame. Implements
// gcbind.RootScanner; only invoked while all mutators are at safepoints.
func (s *Stack) ScanRoots(mark func(gcbind.Raw)) {
	for i := 0; i <= s.cur && i < len(s.pages); i++ {
		p := s.pages[i]
		for j := 0; j < p.used; j++ {
			if raw := p.slots[j].raw; !raw.IsNull() {
				mark(raw)
			}
		}
	}
}

// Retire zeroes and drops every page. The stack must be unregistered from
// the collector first, and no frame may be live.
func (s *Stack) Retire() error {
	if s.top != nil {
		return errors.InvalidHandleState(errors.PhaseMemory, "retire with live frames on the stack")
	}
	s.rewind(0, 0)
	s.pages = nil
	s.retired = true
	return nil
}
