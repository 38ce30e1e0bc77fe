package tracker

import (
	"sync"

	"github.com/hazehub/sessiontrack/internal/domain/session"
)

// Queue is the in-memory batch queue decoupling mutation producers from the
// store's write path. Enqueue is safe from any goroutine and never touches
// I/O; DrainAll has single-consumer drain-all semantics.
type Queue struct {
	mu      sync.Mutex
	pending []session.Mutation
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a mutation. Mutations are kept in enqueue order and never
// deduplicated; last-write-wins is resolved at flush time by applying them
// in order.
func (q *Queue) Enqueue(m session.Mutation) {
	q.mu.Lock()
	q.pending = append(q.pending, m)
	q.mu.Unlock()
}

// DrainAll atomically removes and returns every queued mutation. A mutation
// enqueued during a drain lands in the next drain, never a partial one.
func (q *Queue) DrainAll() []session.Mutation {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()
	return batch
}

// RequeueFront restores a failed batch ahead of anything enqueued since, so
// the retry preserves the original mutation order.
func (q *Queue) RequeueFront(batch []session.Mutation) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	q.pending = append(batch, q.pending...)
	q.mu.Unlock()
}

// Len reports the number of queued mutations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
