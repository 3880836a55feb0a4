// Package testutils provides a synchronous in-memory attempt.Runner.
package testutils

import (
	"context"
	"errors"
	"sync"

	"go.skia.org/culprit/culprit/go/attempt"
	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/go/skerr"
)

// MeasureFunc returns the outcome of one attempt at measuring c. try counts
// the Starts already made for c, starting at zero.
type MeasureFunc func(c *change.Change, try int) ([]float64, error)

// FakeRunner completes every execution on its first Poll, unless
// PendingPolls says otherwise.
type FakeRunner struct {
	Measure MeasureFunc

	// PendingPolls is how many Polls report Running before the result.
	PendingPolls int

	mutex      sync.Mutex
	starts     map[string]int
	executions map[string]*fakeExecution
}

type fakeExecution struct {
	change *change.Change
	try    int
	polls  int
}

// NewFakeRunner returns a FakeRunner that measures with f.
func NewFakeRunner(f MeasureFunc) *FakeRunner {
	return &FakeRunner{
		Measure:    f,
		starts:     map[string]int{},
		executions: map[string]*fakeExecution{},
	}
}

// Starts returns how many executions were started for c.
func (f *FakeRunner) Starts(c *change.Change) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.starts[c.Key()]
}

// TotalStarts returns how many executions were started.
func (f *FakeRunner) TotalStarts() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.executions)
}

// Start implements attempt.Runner.
func (f *FakeRunner) Start(_ context.Context, key string, c *change.Change, _ map[string]string) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if _, ok := f.executions[key]; ok {
		return key, nil
	}
	f.executions[key] = &fakeExecution{change: c, try: f.starts[c.Key()]}
	f.starts[c.Key()]++
	return key, nil
}

// Poll implements attempt.Runner.
func (f *FakeRunner) Poll(_ context.Context, executionID string) (*attempt.Status, error) {
	f.mutex.Lock()
	e, ok := f.executions[executionID]
	if ok {
		e.polls++
	}
	pending := f.PendingPolls
	f.mutex.Unlock()
	if !ok {
		return nil, skerr.Fmt("unknown execution %s", executionID)
	}
	if e.polls <= pending {
		return &attempt.Status{State: attempt.Running}, nil
	}
	values, err := f.Measure(e.change, e.try)
	if err != nil {
		return &attempt.Status{State: attempt.Failed, Err: err}, nil
	}
	return &attempt.Status{State: attempt.Completed, Values: values}, nil
}

// Constant returns n copies of v.
func Constant(v float64, n int) []float64 {
	ret := make([]float64, n)
	for i := range ret {
		ret[i] = v
	}
	return ret
}

// Spread returns n values evenly spread around center, so that the samples
// aren't all tied.
func Spread(center float64, n int) []float64 {
	ret := make([]float64, n)
	for i := range ret {
		ret[i] = center + float64(i%5)/10
	}
	return ret
}

// ErrFlaky is returned, wrapped as retryable, by Flaky.
var ErrFlaky = errors.New("infra flake")

// Flaky returns a retryable error.
func Flaky() error {
	return attempt.Retryable(ErrFlaky)
}

var _ attempt.Runner = (*FakeRunner)(nil)
