package handle

import (
	"context"

	"github.com/google/uuid"

	"github.com/embedrt/gcbind/errors"
)

// Dispatch is a message staged for an AsyncHandle queue. Send and TrySend
// consume it; sending the same dispatch twice is a reported error.
type Dispatch struct {
	h    *AsyncHandle
	env  *envelope
	sent bool
}

// Send enqueues the message, blocking while the target queue is full. It
// fails with a channel_closed error if the handle closes first, or with
// ctx.Err() if the context is done first.
func (d *Dispatch) Send(ctx context.Context) (*Pending, error) {
	q, err := d.stage()
	if err != nil {
		return nil, err
	}

	select {
	case q <- d.env:
		d.sent = true
		d.rescueIfClosed(q)
		return d.pending(), nil
	case <-d.h.done:
		return nil, errors.ChannelClosed(errors.PhaseDispatch)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TrySend enqueues the message without blocking. A full queue yields a
// retryable channel_full error and leaves the dispatch reusable.
func (d *Dispatch) TrySend() (*Pending, error) {
	q, err := d.stage()
	if err != nil {
		return nil, err
	}

	select {
	case <-d.h.done:
		return nil, errors.ChannelClosed(errors.PhaseDispatch)
	default:
	}

	select {
	case q <- d.env:
		d.sent = true
		d.rescueIfClosed(q)
		return d.pending(), nil
	default:
		return nil, errors.ChannelFull(errors.PhaseDispatch)
	}
}

// rescueIfClosed re-resolves an envelope that may have been enqueued after
// the closing handle's final queue sweep, so a send racing Close never
// strands its waiter. Receiving from the queue consumes each envelope
// exactly once, so this cannot double-resolve a message a worker took.
func (d *Dispatch) rescueIfClosed(q chan *envelope) {
	if !d.h.closed.Load() {
		return
	}
	select {
	case env := <-q:
		rejectClosed(env)
	default:
	}
}

// stage validates that the message can still be enqueued. A dispatch is
// consumed only once an enqueue succeeds, so a Full or cancelled send leaves
// it reusable.
func (d *Dispatch) stage() (chan *envelope, error) {
	if d.sent {
		return nil, errors.InvalidHandleState(errors.PhaseDispatch, "message already sent")
	}
	if d.h.closed.Load() {
		return nil, errors.ChannelClosed(errors.PhaseDispatch)
	}
	return d.h.queueFor(d.env.affinity), nil
}

func (d *Dispatch) pending() *Pending {
	return &Pending{id: d.env.id, result: d.env.result}
}

// Pending is the receiving end of a dispatched message's oneshot result
// channel.
type Pending struct {
	id     uuid.UUID
	result <-chan TaskResult
}

// ID returns the message's dispatch identifier.
func (p *Pending) ID() uuid.UUID { return p.id }

// Wait blocks until the task resolves or ctx is done.
func (p *Pending) Wait(ctx context.Context) (any, error) {
	select {
	case res := <-p.result:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result blocks until the task resolves and returns the full tagged result.
func (p *Pending) Result(ctx context.Context) (TaskResult, error) {
	select {
	case res := <-p.result:
		return res, nil
	case <-ctx.Done():
		return TaskResult{}, ctx.Err()
	}
}
