// File: actors/queue.go
package actors

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Queue is an unbounded FIFO queue. Any number of goroutines may Send;
// consumption is meant for one consumer at a time, which the owner of the
// queue enforces.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	ready chan struct{} // holds one token while items may be available
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
	}
}

// Send appends an item. It never blocks.
func (q *Queue[T]) Send(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
}

// Take removes and returns the oldest item, waiting until one is available.
// When ctx is done it returns ErrInterrupted without consuming anything,
// even if an item is already waiting.
func (q *Queue[T]) Take(ctx context.Context) (T, error) {
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, errors.Wrap(ErrInterrupted, err.Error())
		}
		if item, ok := q.Poll(); ok {
			return item, nil
		}
		select {
		case <-ctx.Done():
			return zero, errors.Wrap(ErrInterrupted, ctx.Err().Error())
		case <-q.ready:
		}
	}
}

// Poll removes and returns the oldest item if there is one.
func (q *Queue[T]) Poll() (T, bool) {
	var zero T
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	remaining := len(q.items)
	q.mu.Unlock()

	// Pass the token on so another waiter sees the leftovers.
	if remaining > 0 {
		q.signal()
	}
	return item, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
