// Package memory implements queue.Queue in memory.
package memory

import (
	"context"
	"sync"

	"go.skia.org/culprit/culprit/go/queue"
	"go.skia.org/culprit/go/skerr"
)

// Queue implements queue.Queue. Leases never expire.
type Queue struct {
	mutex   sync.Mutex
	pending []string
	waiting map[string]bool
	// leased maps each leased ID to the token of its Lease.
	leased map[string]uint64
	// deferred holds leased IDs that were enqueued again.
	deferred  map[string]bool
	lastToken uint64
	// ready has a value whenever pending may be non-empty.
	ready chan struct{}
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{
		waiting:  map[string]bool{},
		leased:   map[string]uint64{},
		deferred: map[string]bool{},
		ready:    make(chan struct{}, 1),
	}
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// push must be called with the mutex held.
func (q *Queue) push(jobID string) {
	if _, ok := q.leased[jobID]; ok {
		q.deferred[jobID] = true
		return
	}
	if q.waiting[jobID] {
		return
	}
	q.waiting[jobID] = true
	q.pending = append(q.pending, jobID)
	q.signal()
}

// Enqueue implements queue.Queue.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.push(jobID)
	return nil
}

func (q *Queue) pop() (string, uint64, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if len(q.pending) == 0 {
		return "", 0, false
	}
	id := q.pending[0]
	q.pending = q.pending[1:]
	delete(q.waiting, id)
	q.lastToken++
	q.leased[id] = q.lastToken
	if len(q.pending) > 0 {
		q.signal()
	}
	return id, q.lastToken, true
}

// finish ends the Lease with the given token. The ID goes back on the queue
// if requeue is set or it was enqueued during the Lease.
func (q *Queue) finish(jobID string, token uint64, requeue bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if current, ok := q.leased[jobID]; !ok || current != token {
		return
	}
	delete(q.leased, jobID)
	if q.deferred[jobID] {
		delete(q.deferred, jobID)
		requeue = true
	}
	if requeue {
		q.push(jobID)
	}
}

// Dequeue implements queue.Queue.
func (q *Queue) Dequeue(ctx context.Context) (*queue.Lease, error) {
	for {
		if id, token, ok := q.pop(); ok {
			return queue.NewLease(id,
				func(context.Context) error {
					q.finish(id, token, false)
					return nil
				},
				func(context.Context) error {
					q.finish(id, token, true)
					return nil
				},
			), nil
		}
		select {
		case <-ctx.Done():
			return nil, skerr.Wrap(ctx.Err())
		case <-q.ready:
		}
	}
}

// Len returns the number of waiting IDs.
func (q *Queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.pending)
}

var _ queue.Queue = (*Queue)(nil)
