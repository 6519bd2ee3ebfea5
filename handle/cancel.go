package handle

import "sync/atomic"

// CancelToken is a shared flag observed cooperatively by long-running tasks.
// Setting it never preempts a task; it only changes what the task's next
// checkpoint observes.
type CancelToken struct {
	flag atomic.Bool
}

// NewCancelToken returns an unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel sets the token. Idempotent.
func (t *CancelToken) Cancel() {
	t.flag.Store(true)
}

// Cancelled reports whether the token has been set.
func (t *CancelToken) Cancelled() bool {
	return t.flag.Load()
}
