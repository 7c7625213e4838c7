package queue

import (
	"context"
	"errors"
	"time"
)

// Task is one unit of harvesting work delivered to a worker. Delivery is
// at-least-once with no ordering guarantee across distinct jobs.
type Task struct {
	JobID      string    `json:"job_id"`
	AppID      string    `json:"app_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ErrClosed is returned when the queue has been shut down.
var ErrClosed = errors.New("queue closed")

// Queue hands harvesting tasks from the submission layer to workers.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	// Dequeue blocks until a task is available, the context is cancelled,
	// or the queue is closed.
	Dequeue(ctx context.Context) (Task, error)
	Close() error
}

// MemoryQueue is a channel-backed queue for tests and single-process runs.
type MemoryQueue struct {
	tasks chan Task
	done  chan struct{}
}

// NewMemoryQueue creates an in-process queue with the given buffer size.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 1
	}
	return &MemoryQueue{
		tasks: make(chan Task, buffer),
		done:  make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	select {
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case q.tasks <- task:
		return nil
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Task, error) {
	select {
	case <-q.done:
		return Task{}, ErrClosed
	case <-ctx.Done():
		return Task{}, ctx.Err()
	case task := <-q.tasks:
		return task, nil
	}
}

func (q *MemoryQueue) Close() error {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
	return nil
}
