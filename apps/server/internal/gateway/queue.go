package gateway

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Queue is a FIFO of commands with many producers and a single consumer.
// A capacity of zero means unbounded; otherwise Push waits for a free slot.
type Queue struct {
	mu     sync.Mutex
	items  []Command
	closed bool

	// ready holds at most one wakeup for the consumer.
	ready chan struct{}

	slots       *semaphore.Weighted
	closeCtx    context.Context
	cancelClose context.CancelFunc
}

func NewQueue(capacity int) *Queue {
	closeCtx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		ready:       make(chan struct{}, 1),
		closeCtx:    closeCtx,
		cancelClose: cancel,
	}
	if capacity > 0 {
		q.slots = semaphore.NewWeighted(int64(capacity))
	}
	return q
}

// Push appends cmd. It fails with ErrQueueClosed once Close was called, and with
// ctx.Err() if ctx ends while waiting for room.
func (q *Queue) Push(ctx context.Context, cmd Command) error {
	if q.isClosed() {
		return ErrQueueClosed
	}

	if q.slots != nil {
		waitCtx, cancel := context.WithCancel(ctx)
		stop := context.AfterFunc(q.closeCtx, cancel)
		err := q.slots.Acquire(waitCtx, 1)
		stop()
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrQueueClosed
		}
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.release()
		return ErrQueueClosed
	}
	q.items = append(q.items, cmd)
	q.mu.Unlock()

	q.wake()
	return nil
}

// Pop returns the oldest command, waiting for one if the queue is empty. After
// Close it keeps returning queued commands, then ErrQueueClosed.
func (q *Queue) Pop(ctx context.Context) (Command, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			cmd := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			q.release()
			return cmd, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops accepting commands and wakes every waiting producer and the consumer.
// It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cancelClose()
	q.wake()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue) release() {
	if q.slots != nil {
		q.slots.Release(1)
	}
}
