package errors

import "errors"

// kindOf extracts the Kind from err if it is (or wraps) an *Error.
func kindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func is(err error, kind Kind) bool {
	k, ok := kindOf(err)
	return ok && k == kind
}

// IsStackOverflow reports whether err is a frame slot budget violation.
func IsStackOverflow(err error) bool { return is(err, KindStackOverflow) }

// IsCapacity reports whether err is a frame capacity error.
func IsCapacity(err error) bool { return is(err, KindCapacity) }

// IsInvalidHandleState reports whether err is a handle lifecycle violation.
func IsInvalidHandleState(err error) bool { return is(err, KindInvalidHandleState) }

// IsForeignException reports whether err wraps an exception raised by the
// foreign runtime.
func IsForeignException(err error) bool { return is(err, KindForeignException) }

// IsHostPanic reports whether err wraps a host panic caught at the boundary.
func IsHostPanic(err error) bool { return is(err, KindHostPanic) }

// IsChannelFull reports whether err is a retryable backpressure condition.
func IsChannelFull(err error) bool { return is(err, KindChannelFull) }

// IsChannelClosed reports whether err is a terminal channel error.
func IsChannelClosed(err error) bool { return is(err, KindChannelClosed) }

// IsCancelled reports whether err is a cooperative cancellation result.
func IsCancelled(err error) bool { return is(err, KindCancelled) }

// IsRetryable reports whether the failed operation may be retried as-is.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
