package gateway

import "context"

// Handle submits commands to an Owner. It is a small value with no state of its
// own and may be copied freely.
type Handle struct {
	queue   *Queue
	done    <-chan struct{}
	metrics *Metrics
}

// Submit queues cmd. On a bounded queue it waits for room.
// The depth gauge is raised before the push so the owner never decrements it first.
func (h Handle) Submit(ctx context.Context, cmd Command) error {
	h.metrics.enqueued()
	if err := h.queue.Push(ctx, cmd); err != nil {
		h.metrics.dequeued()
		return err
	}
	return nil
}

// Done is closed once the owner has stopped.
func (h Handle) Done() <-chan struct{} {
	return h.done
}
