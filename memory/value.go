package memory

import (
	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/errors"
	"github.com/embedrt/gcbind/ffi"
)

// Value is a reference to foreign data obtained through a Target. Rooted
// values carry the generation stamp of the slot that protects them and
// revalidate it on every access, so use-after-pop fails fast instead of
// reading a recycled slot. Unrooted values skip validation; their safety is
// the caller's proof obligation.
type Value struct {
	rt   ffi.Runtime
	raw  gcbind.Raw // only for unrooted values
	slot *slot      // nil for unrooted values
	gen  uint64
}

// Raw returns the underlying reference, failing if the protecting frame has
// been popped or the slot reset.
func (v Value) Raw() (gcbind.Raw, error) {
	if v.slot == nil {
		return v.raw, nil
	}
	if v.slot.gen != v.gen {
		return gcbind.RawNull, errors.InvalidHandleState(errors.PhaseMemory, "value's root slot is no longer live")
	}
	return v.slot.raw, nil
}

// IsRooted reports whether the value is protected by a root slot.
func (v Value) IsRooted() bool { return v.slot != nil }

// IsNull reports whether the value is the foreign null reference. A value
// whose slot is no longer live also reports null.
func (v Value) IsNull() bool {
	raw, err := v.Raw()
	return err != nil || raw.IsNull()
}

// Unbox reads back the host representation of the referent.
func (v Value) Unbox() (any, error) {
	raw, err := v.Raw()
	if err != nil {
		return nil, err
	}
	if raw.IsNull() {
		return nil, nil
	}
	return v.rt.Deref(raw)
}

// SetChild stores a child reference reachable from this value and notifies
// the collector's write barrier, as required after mutating any pointer
// field of rooted data.
func (v Value) SetChild(child Value) error {
	owner, err := v.Raw()
	if err != nil {
		return err
	}
	c, err := child.Raw()
	if err != nil {
		return err
	}
	v.rt.WriteBarrier(owner, c)
	return nil
}

// NewValue boxes a host value on the foreign heap and writes the result
// through t.
func NewValue(t Target, v any) (Value, error) {
	raw, err := t.runtime().Alloc(v)
	if err != nil {
		return Value{}, err
	}
	return t.consume(raw)
}

// Eval evaluates foreign source text and writes the result through t. A
// foreign exception comes back as a foreign_exception error; a host panic
// raised by the runtime implementation is contained at the boundary and
// comes back as a host_panic error.
func Eval(t Target, src string) (Value, error) {
	rt := t.runtime()
	out := ffi.Catch(func() (gcbind.Raw, error) {
		return rt.EvalText(src)
	})
	raw, err := out.AsError()
	if err != nil {
		return Value{}, err
	}
	return t.consume(raw)
}
