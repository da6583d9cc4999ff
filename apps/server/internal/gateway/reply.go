package gateway

import (
	"context"
	"sync/atomic"
)

type reply[R any] struct {
	value R
	err   error
}

// replySlot carries exactly one outcome from the owner back to the caller.
// Sending never blocks.
type replySlot[R any] struct {
	ch        chan reply[R]
	sent      atomic.Bool
	abandoned atomic.Bool
}

func newReplySlot[R any]() *replySlot[R] {
	return &replySlot[R]{ch: make(chan reply[R], 1)}
}

// send stores the outcome. It reports false when the slot was already used or the
// waiter has gone away.
func (s *replySlot[R]) send(value R, err error) bool {
	if !s.sent.CompareAndSwap(false, true) {
		return false
	}
	s.ch <- reply[R]{value: value, err: err}
	return !s.abandoned.Load()
}

// wait blocks until the outcome arrives, ctx ends, or the owner is gone.
func (s *replySlot[R]) wait(ctx context.Context, done <-chan struct{}) (R, error) {
	var zero R
	select {
	case r := <-s.ch:
		return r.value, r.err
	case <-ctx.Done():
		s.abandoned.Store(true)
		return zero, ctx.Err()
	case <-done:
		// The owner may have replied right before it stopped.
		select {
		case r := <-s.ch:
			return r.value, r.err
		default:
			return zero, ErrUnavailable
		}
	}
}

// replyTo is embedded by every command to give it a typed reply slot.
type replyTo[R any] struct {
	reply *replySlot[R]
}

func newReplyTo[R any]() replyTo[R] {
	return replyTo[R]{reply: newReplySlot[R]()}
}

func (r replyTo[R]) fail(err error) bool {
	var zero R
	return r.reply.send(zero, err)
}
