// Package attempt runs single measurements of a Change.
package attempt

import (
	"context"
	"errors"

	"go.skia.org/culprit/culprit/go/change"
)

// State of an execution.
type State string

const (
	Running   State = "running"
	Completed State = "completed"
	Failed    State = "failed"
)

// Status is the result of polling an execution.
type Status struct {
	State State
	// Values are the measurements, set when State is Completed.
	Values []float64
	// Err is set when State is Failed. Errors wrapped with Retryable may
	// succeed if the attempt is tried again; all others are fatal.
	Err error
}

// Runner starts and polls measurements. Implementations must treat Start with
// a key they have already seen as a no-op that returns the same execution ID,
// since a tick may be retried.
type Runner interface {
	// Start begins measuring c and returns an execution ID to poll.
	Start(ctx context.Context, key string, c *change.Change, args map[string]string) (string, error)

	// Poll returns the current status of an execution. An error means the
	// status could not be fetched, not that the execution failed.
	Poll(ctx context.Context, executionID string) (*Status, error)
}

// RetryableError marks a failure as transient.
type RetryableError struct {
	Err error
}

func (r *RetryableError) Error() string {
	return "retryable: " + r.Err.Error()
}

func (r *RetryableError) Unwrap() error {
	return r.Err
}

// Retryable wraps err to mark it as transient. Returns nil if err is nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable returns true if err, or anything it wraps, was marked with
// Retryable.
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}
