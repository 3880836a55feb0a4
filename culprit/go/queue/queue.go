// Package queue delivers the IDs of Jobs that need another tick to workers.
package queue

import (
	"context"
)

// Queue is a work queue of Job IDs.
//
// A Job ID has at most one outstanding Lease, so no two workers tick the same
// Job at once. Enqueueing an ID that is waiting is a no-op. Enqueueing an ID
// that is leased is remembered, and the ID is put back on the queue once its
// Lease is acknowledged.
type Queue interface {
	// Enqueue adds jobID to the queue unless it is already waiting. If jobID
	// is leased it is added when the Lease ends.
	Enqueue(ctx context.Context, jobID string) error

	// Dequeue blocks until a Job ID is available or ctx is done.
	Dequeue(ctx context.Context) (*Lease, error)
}

// Lease is a dequeued Job ID. Exactly one of Ack or Release should be
// called. Implementations may redeliver an ID whose Lease is never
// acknowledged, after which Ack and Release of the old Lease do nothing.
type Lease struct {
	JobID string

	ack     func(context.Context) error
	release func(context.Context) error
}

// NewLease is used by implementations of Queue.
func NewLease(jobID string, ack, release func(context.Context) error) *Lease {
	return &Lease{
		JobID:   jobID,
		ack:     ack,
		release: release,
	}
}

// Ack marks the work as done.
func (l *Lease) Ack(ctx context.Context) error {
	return l.ack(ctx)
}

// Release gives the ID back so that it is delivered again.
func (l *Lease) Release(ctx context.Context) error {
	return l.release(ctx)
}
