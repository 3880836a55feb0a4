// Package jobstore persists Job snapshots with optimistic concurrency
// control.
package jobstore

import (
	"context"
	"errors"

	"go.skia.org/culprit/culprit/go/job"
	"go.skia.org/culprit/go/sklog"
)

// Retries attempted by UpdateWithRetries.
const NUM_RETRIES = 5

var (
	ErrAlreadyExists    = errors.New("Job with given ID already exists")
	ErrConcurrentUpdate = errors.New("Concurrent update")
	ErrNotFound         = errors.New("Job with given ID does not exist")
)

func IsAlreadyExists(e error) bool {
	return errors.Is(e, ErrAlreadyExists)
}

func IsConcurrentUpdate(e error) bool {
	return errors.Is(e, ErrConcurrentUpdate)
}

func IsNotFound(e error) bool {
	return errors.Is(e, ErrNotFound)
}

// Store persists Jobs. Implementations must be safe for concurrent use.
type Store interface {
	// Create stores a new Job and sets its Version to 1. Returns
	// ErrAlreadyExists if a Job with the same ID is stored.
	Create(ctx context.Context, j *job.Job) error

	// Load returns the latest snapshot of the Job, or ErrNotFound.
	Load(ctx context.Context, id string) (*job.Job, error)

	// Save stores j only if the stored Version is still expectedVersion, in
	// which case j.Version is set to expectedVersion+1. Otherwise returns
	// ErrConcurrentUpdate and nothing is written.
	Save(ctx context.Context, j *job.Job, expectedVersion int64) error

	// List returns up to limit Jobs, most recently created first.
	List(ctx context.Context, limit int) ([]*job.Job, error)
}

// UpdateWithRetries reads, updates, and writes a single Job. It:
//  1. loads the Job with the given id,
//  2. calls f on it, and
//  3. saves the updated Job,
//  4. repeating from step 1 as long as Save returns ErrConcurrentUpdate and
//     retries have not been exhausted.
//
// Returns the updated Job. Immediately returns any error from Load, from f,
// or from Save other than ErrConcurrentUpdate. Returns ErrConcurrentUpdate if
// retries are exhausted.
func UpdateWithRetries(ctx context.Context, s Store, id string, f func(*job.Job) error) (*job.Job, error) {
	var lastErr error
	for i := 0; i < NUM_RETRIES; i++ {
		j, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := f(j); err != nil {
			return nil, err
		}
		lastErr = s.Save(ctx, j, j.Version)
		if lastErr == nil {
			return j, nil
		} else if !IsConcurrentUpdate(lastErr) {
			return nil, lastErr
		}
	}
	sklog.Warningf("UpdateWithRetries: %d consecutive ErrConcurrentUpdate.", NUM_RETRIES)
	return nil, lastErr
}
