// Package job holds the state of a bisection and advances it one tick at a
// time.
//
// A Job is a plain, serializable snapshot. Tick takes a snapshot and the
// external collaborators and returns the next snapshot along with the side
// effects the caller should perform once the new snapshot has been saved.
package job

import (
	"context"
	"encoding/json"
	"time"

	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/culprit/go/compare"
	"go.skia.org/culprit/culprit/go/exploration"
	"go.skia.org/culprit/go/now"
	"go.skia.org/culprit/go/skerr"
)

// State of a Job.
type State string

const (
	Created   State = "created"
	Running   State = "running"
	Completed State = "completed"
	Failed    State = "failed"
)

// IsTerminal returns true for Completed and Failed.
func (s State) IsTerminal() bool {
	return s == Completed || s == Failed
}

// AttemptState is the lifecycle of a single Attempt.
type AttemptState string

const (
	// AttemptPending has not been started, or is waiting to be retried.
	AttemptPending   AttemptState = "pending"
	AttemptRunning   AttemptState = "running"
	AttemptCompleted AttemptState = "completed"
	// AttemptFailed will not be retried.
	AttemptFailed AttemptState = "failed"
)

// Attempt is one measurement of a Change.
type Attempt struct {
	State       AttemptState `json:"state"`
	ExecutionID string       `json:"execution_id,omitempty"`
	Values      []float64    `json:"values,omitempty"`
	// Tries is how many times the Attempt has been started.
	Tries     int    `json:"tries"`
	LastError string `json:"last_error,omitempty"`
}

// Comparison is the verdict for an adjacent pair of Changes.
type Comparison struct {
	Before  *change.Change  `json:"before"`
	After   *change.Change  `json:"after"`
	Verdict compare.Verdict `json:"verdict"`
	PValue  float64         `json:"p_value"`
	// Pending is true if either Change had no completed Attempts yet, in
	// which case the Detector was not consulted.
	Pending bool `json:"pending,omitempty"`
	// Exhausted is true if the Detector said Unknown but both Changes had
	// reached MaxAttempts, so the pair was treated as Same.
	Exhausted bool `json:"exhausted,omitempty"`
}

// Difference is a localized behavior change. After is the first Change that
// behaves differently; Commit is the commit that differs between the two.
type Difference struct {
	// Index of After in Job.Changes.
	Index   int                `json:"index"`
	Before  *change.Change     `json:"before"`
	After   *change.Change     `json:"after"`
	Commit  change.Commit      `json:"commit"`
	Culprit *change.CommitInfo `json:"culprit,omitempty"`
	PValue  float64            `json:"p_value"`
	// Gap is set when the Changes between Before and After could not be
	// measured, so the difference lies somewhere in that range and no single
	// commit is blamed. Commit and Culprit are empty.
	Gap bool `json:"gap,omitempty"`
}

// Options control how a Job bisects.
type Options struct {
	// Levels is how deep each differing pair is speculated in one tick.
	Levels int `json:"levels" yaml:"levels"`
	// InitialAttempts is the number of Attempts first run for each Change.
	InitialAttempts int `json:"initial_attempts" yaml:"initial_attempts"`
	// MaxAttempts caps the Attempts for a Change. Inconclusive pairs double
	// their Attempts until this is reached.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	// MaxInFlight bounds the Attempts running at once for this Job.
	MaxInFlight int `json:"max_in_flight" yaml:"max_in_flight"`
	// RetryBudget is how many times a single Attempt is started before a
	// retryable failure becomes permanent.
	RetryBudget int `json:"retry_budget" yaml:"retry_budget"`
	// MaxTicks fails the Job after this many ticks. Negative means no limit.
	MaxTicks int `json:"max_ticks" yaml:"max_ticks"`
	// Comparison configures the Detector.
	Comparison compare.Options `json:"comparison" yaml:"comparison"`
	// Args are passed to the attempt.Runner.
	Args map[string]string `json:"args,omitempty" yaml:"args,omitempty"`
}

// DefaultOptions are used for any field left at zero.
var DefaultOptions = Options{
	Levels:          exploration.DefaultLevels,
	InitialAttempts: 10,
	MaxAttempts:     160,
	MaxInFlight:     64,
	RetryBudget:     3,
	MaxTicks:        500,
	Comparison: compare.Options{
		Mode:      compare.Performance,
		Magnitude: 1.0,
	},
}

// WithDefaults returns a copy of o with zero fields filled from
// DefaultOptions.
func (o Options) WithDefaults() Options {
	return o.WithDefaultsFrom(DefaultOptions)
}

// WithDefaultsFrom returns a copy of o with zero fields filled from d, and
// then from DefaultOptions.
func (o Options) WithDefaultsFrom(d Options) Options {
	o = o.fill(d).fill(DefaultOptions)
	if o.MaxAttempts < o.InitialAttempts {
		o.MaxAttempts = o.InitialAttempts
	}
	return o
}

func (o Options) fill(d Options) Options {
	if o.Levels <= 0 {
		o.Levels = d.Levels
	}
	if o.InitialAttempts <= 0 {
		o.InitialAttempts = d.InitialAttempts
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = d.MaxInFlight
	}
	if o.RetryBudget <= 0 {
		o.RetryBudget = d.RetryBudget
	}
	if o.MaxTicks == 0 {
		o.MaxTicks = d.MaxTicks
	}
	if o.Comparison.Mode == "" {
		o.Comparison.Mode = d.Comparison.Mode
	}
	if o.Comparison.Magnitude == 0 {
		o.Comparison.Magnitude = d.Comparison.Magnitude
	}
	if o.Comparison.SignificanceLevel == 0 {
		o.Comparison.SignificanceLevel = d.Comparison.SignificanceLevel
	}
	if o.Args == nil && d.Args != nil {
		o.Args = make(map[string]string, len(d.Args))
		for k, v := range d.Args {
			o.Args[k] = v
		}
	}
	return o
}

// Job is the persisted state of one bisection.
type Job struct {
	ID string `json:"id"`
	// Version is incremented on every save and used for optimistic
	// concurrency control.
	Version int64   `json:"version"`
	State   State   `json:"state"`
	Options Options `json:"options"`
	BugID   string  `json:"bug_id,omitempty"`

	// Changes is in ascending order. The first and last are the ones the
	// Job was created with.
	Changes []*change.Change `json:"changes"`
	// FailedChanges could not be measured and were removed from Changes.
	FailedChanges []*change.Change `json:"failed_changes,omitempty"`
	// FailedGaps are the pairs of Changes that were adjacent to a failed
	// Change, in the form "beforeKey|afterKey". They are never bisected.
	FailedGaps []string `json:"failed_gaps,omitempty"`
	// Attempts and Targets are keyed by Change.Key().
	Attempts map[string][]*Attempt `json:"attempts"`
	Targets  map[string]int        `json:"targets"`

	// Comparisons are from the most recent tick.
	Comparisons []*Comparison `json:"comparisons,omitempty"`
	Differences []*Difference `json:"differences,omitempty"`

	Ticks         int    `json:"ticks"`
	Cancelled     bool   `json:"cancelled,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// New returns a Job in the Created state that bisects between the given
// Changes, which must be in ascending order.
func New(ctx context.Context, id string, changes []*change.Change, opts Options, bugID string) (*Job, error) {
	if len(changes) < 2 {
		return nil, skerr.Fmt("a job needs at least two changes, got %d", len(changes))
	}
	seen := map[string]bool{}
	for _, c := range changes {
		if seen[c.Key()] {
			return nil, skerr.Fmt("change %s is listed twice", c)
		}
		seen[c.Key()] = true
	}
	opts = opts.WithDefaults()
	j := &Job{
		ID:        id,
		State:     Created,
		Options:   opts,
		BugID:     bugID,
		Changes:   changes,
		Attempts:  map[string][]*Attempt{},
		Targets:   map[string]int{},
		CreatedAt: now.Now(ctx),
	}
	for _, c := range changes {
		j.Targets[c.Key()] = opts.InitialAttempts
	}
	return j, nil
}

// Clone returns a deep copy of j.
func (j *Job) Clone() (*Job, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return nil, skerr.Wrapf(err, "encoding job %s", j.ID)
	}
	var ret Job
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, skerr.Wrapf(err, "decoding job %s", j.ID)
	}
	if ret.Attempts == nil {
		ret.Attempts = map[string][]*Attempt{}
	}
	if ret.Targets == nil {
		ret.Targets = map[string]int{}
	}
	return &ret, nil
}

// Values returns the pooled values of every completed Attempt of c.
func (j *Job) Values(c *change.Change) []float64 {
	var ret []float64
	for _, a := range j.Attempts[c.Key()] {
		if a.State == AttemptCompleted {
			ret = append(ret, a.Values...)
		}
	}
	return ret
}

// attemptCounts summarizes the Attempts of a Change.
type attemptCounts struct {
	completed, running, pending, failed int
}

func (a attemptCounts) finished() int {
	return a.completed + a.failed
}

func (a attemptCounts) outstanding() int {
	return a.running + a.pending
}

func (j *Job) counts(c *change.Change) attemptCounts {
	var ret attemptCounts
	for _, a := range j.Attempts[c.Key()] {
		switch a.State {
		case AttemptCompleted:
			ret.completed++
		case AttemptRunning:
			ret.running++
		case AttemptPending:
			ret.pending++
		case AttemptFailed:
			ret.failed++
		}
	}
	return ret
}

// ready returns true once c has at least one completed Attempt.
func (j *Job) ready(c *change.Change) bool {
	return j.counts(c).completed > 0
}
