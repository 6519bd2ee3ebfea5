package ffi

import (
	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/errors"
)

// Outcome is the tagged result of a call that crossed the native boundary.
// Exactly one of the payload fields is meaningful, selected by Tag.
type Outcome struct {
	Tag gcbind.Tag

	// Value is the call's result reference when Tag is TagOk.
	Value gcbind.Raw

	// Err is the converted foreign exception when Tag is TagException.
	Err error

	// PanicValue is the recovered host panic payload when Tag is TagPanic.
	PanicValue any
}

// AsError flattens the outcome into the (Raw, error) shape used by most of
// the binding layer. Panics become KindHostPanic errors carrying the
// recovered value, so the caller can decide whether to re-panic locally.
func (o Outcome) AsError() (gcbind.Raw, error) {
	switch o.Tag {
	case gcbind.TagOk:
		return o.Value, nil
	case gcbind.TagException:
		return gcbind.RawNull, o.Err
	default:
		return gcbind.RawNull, errors.HostPanic(o.PanicValue)
	}
}

// Catch invokes f and converts both failure modes at the boundary into a
// tagged Outcome. A non-nil error from f is treated as a foreign exception;
// a panic inside f is recovered and tagged TagPanic instead of unwinding
// into foreign stack frames.
func Catch(f func() (gcbind.Raw, error)) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Tag: gcbind.TagPanic, PanicValue: r}
		}
	}()

	raw, err := f()
	if err != nil {
		return Outcome{Tag: gcbind.TagException, Err: err}
	}
	return Outcome{Tag: gcbind.TagOk, Value: raw}
}

// CatchValue is Catch for calls that produce a host value instead of a
// foreign reference.
func CatchValue(f func() (any, error)) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = errors.HostPanic(r)
		}
	}()

	return f()
}
