package enrich

import (
	"context"
	"sync"
)

// DefaultQueueSize is the MemoryQueue capacity when none is given.
const DefaultQueueSize = 100

// MemoryQueue is an in-process bounded queue. Jobs are lost on restart.
type MemoryQueue struct {
	jobs      chan Job
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue creates a queue holding up to size jobs.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &MemoryQueue{
		jobs: make(chan Job, size),
		done: make(chan struct{}),
	}
}

// Enqueue adds job, or returns ErrQueueFull without waiting.
func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue waits for the next job.
func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case <-q.done:
		return Job{}, ErrQueueClosed
	case job := <-q.jobs:
		return job, nil
	}
}

// Len returns the number of pending jobs.
func (q *MemoryQueue) Len() int { return len(q.jobs) }

// Close stops delivery. Pending jobs are discarded.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
