package memory

import (
	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/errors"
	"github.com/embedrt/gcbind/ffi"
)

// Frame is an activation record on the shadow stack. It owns a range of root
// slots and is popped when the scope that created it returns, at which point
// every slot it owned is immediately treated as unrooted.
//
// A Frame is only valid on the thread that owns its stack, and only until
// its scope exits. It is itself a rooting Target: consuming a value roots it
// in a fresh slot of this frame.
type Frame struct {
	stack    *Stack
	slots    []*slot
	reserved []*slot // pre-grown slots a dynamic frame consumes before the arena
	used     int
	capacity int // -1: dynamic, grows on demand
	gen      uint64

	prevPage int
	prevUsed int
	parent   *Frame
	popped   bool
}

// Capacity returns the declared slot count, or -1 for a dynamic frame.
func (fr *Frame) Capacity() int { return fr.capacity }

// Used returns the number of slots taken so far.
func (fr *Frame) Used() int { return fr.used }

func (fr *Frame) check() error {
	if fr.popped {
		return errors.InvalidHandleState(errors.PhaseMemory, "frame has been popped")
	}
	return nil
}

// grab returns the next free slot, growing a dynamic frame as needed.
func (fr *Frame) grab() (*slot, error) {
	if err := fr.check(); err != nil {
		return nil, err
	}

	if fr.capacity >= 0 {
		if fr.used >= fr.capacity {
			return nil, errors.StackOverflow(fr.used+1, fr.capacity)
		}
		sl := fr.slots[fr.used]
		fr.used++
		return sl, nil
	}

	// Reserved slots were carved out before any child frame existed, so a
	// dynamic frame may consume them even while it is not the current top.
	if len(fr.reserved) > 0 {
		sl := fr.reserved[0]
		fr.reserved = fr.reserved[1:]
		fr.slots = append(fr.slots, sl)
		fr.used++
		return sl, nil
	}

	// Dynamic frame: slots may only be appended while this frame is the
	// top of the stack, otherwise they would land inside a child frame.
	if fr.stack.top != fr {
		return nil, errors.InvalidHandleState(errors.PhaseMemory, "rooting through a frame that is not the current top")
	}
	if fr.used+1 > MaxFrameSlots {
		return nil, errors.Capacity(fr.used+1, MaxFrameSlots)
	}
	sl, err := fr.stack.takeOne()
	if err != nil {
		return nil, err
	}
	fr.slots = append(fr.slots, sl)
	fr.used++
	return sl, nil
}

// Root registers raw in the next free slot and returns the rooted value.
// On a fixed-capacity frame, rooting beyond the declared count fails with a
// stack_overflow error; adjacent slots are never written.
func (fr *Frame) Root(raw gcbind.Raw) (Value, error) {
	sl, err := fr.grab()
	if err != nil {
		return Value{}, err
	}
	gen := fr.stack.nextGen()
	sl.raw = raw
	sl.gen = gen
	return Value{rt: fr.stack.rt, slot: sl, gen: gen}, nil
}

// Reserve pre-grows a dynamic frame by n slots, carving them out of the
// arena now so the next n roots consume them without touching the cursor.
// The frame must be the current top when reserving. No-op for fixed frames,
// whose slots were all taken at creation.
func (fr *Frame) Reserve(n int) error {
	if err := fr.check(); err != nil {
		return err
	}
	if fr.capacity >= 0 {
		return nil
	}
	if n <= 0 {
		return nil
	}
	if fr.stack.top != fr {
		return errors.InvalidHandleState(errors.PhaseMemory, "reserving through a frame that is not the current top")
	}
	if fr.used+len(fr.reserved)+n > MaxFrameSlots {
		return errors.Capacity(fr.used+len(fr.reserved)+n, MaxFrameSlots)
	}
	slots, err := fr.stack.takeContiguous(n)
	if err != nil {
		return err
	}
	fr.reserved = append(fr.reserved, slots...)
	return nil
}

// Output reserves a slot in this frame and returns a target bound to it.
// Passing the output into a nested scope lets that scope's result survive
// into this frame.
func (fr *Frame) Output() (*Output, error) {
	sl, err := fr.grab()
	if err != nil {
		return nil, err
	}
	gen := fr.stack.nextGen()
	sl.gen = gen
	return &Output{stack: fr.stack, slot: sl, gen: gen}, nil
}

// ReusableSlot reserves a slot that can be overwritten repeatedly. Each
// reset makes data rooted there earlier unreachable the instant it lands.
func (fr *Frame) ReusableSlot() (*ReusableSlot, error) {
	sl, err := fr.grab()
	if err != nil {
		return nil, err
	}
	gen := fr.stack.nextGen()
	sl.gen = gen
	return &ReusableSlot{stack: fr.stack, slot: sl, gen: gen}, nil
}

// Unrooted returns the non-rooting target for this frame's runtime. Using
// it is a proof obligation on the caller that the value needs no protection.
func (fr *Frame) Unrooted() Unrooted {
	return Unrooted{rt: fr.stack.rt}
}

// Scope runs f with a new dynamic child frame. See Stack.Scope.
func (fr *Frame) Scope(f func(*Frame) error) error {
	if err := fr.checkNestable(); err != nil {
		return err
	}
	return fr.stack.Scope(f)
}

// LocalScope runs f with a new fixed-capacity child frame. See
// Stack.LocalScope.
func (fr *Frame) LocalScope(n int, f func(*Frame) error) error {
	if err := fr.checkNestable(); err != nil {
		return err
	}
	return fr.stack.LocalScope(n, f)
}

// UnsizedLocalScope runs f with a child frame sized at runtime. See
// Stack.UnsizedLocalScope.
func (fr *Frame) UnsizedLocalScope(size int, f func(*Frame) error) error {
	if err := fr.checkNestable(); err != nil {
		return err
	}
	return fr.stack.UnsizedLocalScope(size, f)
}

func (fr *Frame) checkNestable() error {
	if err := fr.check(); err != nil {
		return err
	}
	if fr.stack.top != fr {
		return errors.InvalidHandleState(errors.PhaseMemory, "nesting a scope under a frame that is not the current top")
	}
	return nil
}

// Target implementation: rooting into a fresh slot.

func (fr *Frame) runtime() ffi.Runtime { return fr.stack.rt }

func (fr *Frame) consume(raw gcbind.Raw) (Value, error) {
	return fr.Root(raw)
}
