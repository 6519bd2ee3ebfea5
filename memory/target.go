package memory

import (
	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/errors"
	"github.com/embedrt/gcbind/ffi"
)

// Target is the destination a value-producing operation writes its result
// into. Every API that can return a freshly allocated foreign value takes a
// Target and writes the result nowhere else.
//
// The set of targets is closed: Frame (root in a new slot), Output (root in
// a reserved ancestor slot), ReusableSlot (overwrite one slot repeatedly)
// and Unrooted (no rooting; caller's proof obligation).
type Target interface {
	runtime() ffi.Runtime
	consume(raw gcbind.Raw) (Value, error)
}

// Output targets a slot reserved in an ancestor frame. Data written through
// it outlives the scope that produced it and stays rooted until the owning
// frame is popped. Consuming an Output again overwrites the same slot but
// keeps earlier values usable; use a ReusableSlot when earlier values should
// be invalidated instead.
type Output struct {
	stack *Stack
	slot  *slot
	gen   uint64
}

func (o *Output) runtime() ffi.Runtime { return o.stack.rt }

func (o *Output) consume(raw gcbind.Raw) (Value, error) {
	if o.slot.gen != o.gen {
		return Value{}, errors.InvalidHandleState(errors.PhaseMemory, "output's frame has been popped")
	}
	o.slot.raw = raw
	return Value{rt: o.stack.rt, slot: o.slot, gen: o.gen}, nil
}

// ReusableSlot targets one slot that can be reset repeatedly. Every consume
// bumps the slot's generation: values rooted there earlier become
// unreachable the instant the slot is reset, and accessing them fails fast.
type ReusableSlot struct {
	stack *Stack
	slot  *slot
	gen   uint64
}

func (r *ReusableSlot) runtime() ffi.Runtime { return r.stack.rt }

func (r *ReusableSlot) consume(raw gcbind.Raw) (Value, error) {
	if r.slot.gen != r.gen {
		return Value{}, errors.InvalidHandleState(errors.PhaseMemory, "reusable slot's frame has been popped")
	}
	gen := r.stack.nextGen()
	r.slot.raw = raw
	r.slot.gen = gen
	r.gen = gen
	return Value{rt: r.stack.rt, slot: r.slot, gen: gen}, nil
}

// Unrooted asserts the consumed value needs no rooting: it is already
// reachable globally or proven collector-exempt. The returned Value carries
// the raw reference directly and performs no liveness validation.
type Unrooted struct {
	rt ffi.Runtime
}

// NewUnrooted returns an unrooting target for rt.
func NewUnrooted(rt ffi.Runtime) Unrooted { return Unrooted{rt: rt} }

func (u Unrooted) runtime() ffi.Runtime { return u.rt }

func (u Unrooted) consume(raw gcbind.Raw) (Value, error) {
	return Value{rt: u.rt, raw: raw}, nil
}
