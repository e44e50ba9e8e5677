package bridge

import (
	"context"
	"io"
	"sync"
)

// Queue is a bounded FIFO of audio chunks between two pipeline stages.
// Push blocks while the queue is full and Pop blocks while it is empty.
// Close is the end-of-stream marker: items already queued are still
// delivered, after which Pop reports io.EOF.
type Queue struct {
	items  chan []byte
	closed chan struct{}
	once   sync.Once
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		items:  make(chan []byte, capacity),
		closed: make(chan struct{}),
	}
}

// Push appends data, waiting for room. It fails with ErrQueueClosed once
// the queue is closed, or with the context error.
func (q *Queue) Push(ctx context.Context, data []byte) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.items <- data:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop removes the oldest item, waiting for one to arrive. After Close it
// drains what is left and then returns io.EOF.
func (q *Queue) Pop(ctx context.Context) ([]byte, error) {
	select {
	case data := <-q.items:
		return data, nil
	default:
	}

	select {
	case data := <-q.items:
		return data, nil
	case <-q.closed:
		select {
		case data := <-q.items:
			return data, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close marks the end of the stream. Safe to call more than once.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.closed)
	})
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.items)
}
