package job

import (
	"context"
	"crypto/sha1"
	"fmt"

	"golang.org/x/sync/errgroup"

	"go.skia.org/culprit/culprit/go/attempt"
	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/culprit/go/compare"
	"go.skia.org/culprit/culprit/go/exploration"
	"go.skia.org/culprit/go/metrics2"
	"go.skia.org/culprit/go/now"
	"go.skia.org/culprit/go/skerr"
	"go.skia.org/culprit/go/sklog"
)

// Detector compares the values of two Changes.
type Detector interface {
	Compare(valuesA, valuesB []float64) (*compare.CompareResults, error)
}

// Deps are the collaborators Tick talks to.
type Deps struct {
	Resolver change.Resolver
	Runner   attempt.Runner
	// Detector is optional. If nil, one is built from the Job's Options.
	Detector Detector
}

// EffectKind says what the caller should do after saving the new snapshot.
type EffectKind string

const (
	// EffectNotify posts Notification to the Job's bug.
	EffectNotify EffectKind = "notify"
	// EffectReschedule asks for another tick.
	EffectReschedule EffectKind = "reschedule"
)

// Notification is the kind of bug update to post.
type Notification string

const (
	NotifyStarted   Notification = "started"
	NotifyCompleted Notification = "completed"
	NotifyFailed    Notification = "failed"
)

// Effect is a side effect requested by Tick. Effects must only be carried out
// once the snapshot returned alongside them has been saved.
type Effect struct {
	Kind         EffectKind   `json:"kind"`
	Notification Notification `json:"notification,omitempty"`
}

var (
	ticksCounter           = metrics2.GetCounter("culprit_job_ticks")
	attemptsStartedCounter = metrics2.GetCounter("culprit_attempts_started")
	attemptsFailedCounter  = metrics2.GetCounter("culprit_attempts_failed")
	jobsFinishedCompleted  = metrics2.GetCounter("culprit_jobs_finished", map[string]string{"state": string(Completed)})
	jobsFinishedFailed     = metrics2.GetCounter("culprit_jobs_finished", map[string]string{"state": string(Failed)})
)

// Tick advances snapshot by one step and returns the new snapshot. snapshot
// is not modified. A returned error means nothing happened that needs to be
// saved, and the tick may be retried with the same snapshot.
//
// Calling Tick again with the same snapshot will Start the same attempt keys,
// so a Runner that honors its idempotency contract sees no duplicate work.
func Tick(ctx context.Context, snapshot *Job, deps Deps) (*Job, []Effect, error) {
	j, err := snapshot.Clone()
	if err != nil {
		return nil, nil, skerr.Wrap(err)
	}
	if j.State.IsTerminal() {
		return j, nil, nil
	}
	if j.Cancelled {
		// No notifications for cancelled jobs.
		j.fail(ctx, "cancelled")
		return j, nil, nil
	}

	timer := metrics2.NewTimer("culprit_tick_duration")
	defer timer.Stop()
	ticksCounter.Inc(1)

	j.Ticks++
	j.Options = j.Options.WithDefaults()
	if j.Options.MaxTicks > 0 && j.Ticks > j.Options.MaxTicks {
		j.fail(ctx, fmt.Sprintf("gave up after %d ticks", j.Options.MaxTicks))
		return j, []Effect{notify(NotifyFailed)}, nil
	}

	var effects []Effect
	if j.State == Created {
		j.State = Running
		j.StartedAt = now.Now(ctx)
		effects = append(effects, notify(NotifyStarted))
	}

	detector := deps.Detector
	if detector == nil {
		detector = compare.NewDetector(j.Options.Comparison)
	}

	if err := j.pollRunning(ctx, deps.Runner); err != nil {
		return nil, nil, err
	}
	if err := j.startPending(ctx, deps.Runner); err != nil {
		return nil, nil, err
	}

	if reason := j.dropDeadChanges(); reason != "" {
		j.fail(ctx, reason)
		return j, append(effects, notify(NotifyFailed)), nil
	}

	comparisons, err := j.compareAll(detector)
	if err != nil {
		return nil, nil, err
	}

	failed := map[string]bool{}
	for _, c := range j.FailedChanges {
		failed[c.Key()] = true
	}
	gaps := map[string]bool{}
	for _, k := range j.FailedGaps {
		gaps[k] = true
	}
	unknown := false
	onUnknown := func(a, b *change.Change) {
		unknown = true
		// Pairs still waiting on their first results already have
		// Attempts on the way.
		if !comparisons[pairKey(a, b)].Pending {
			j.raiseTarget(a, b)
		}
	}
	midpoint := func(a, b *change.Change) (*change.Change, error) {
		if gaps[pairKey(a, b)] {
			return nil, nil
		}
		m, err := change.Midpoint(ctx, deps.Resolver, a, b)
		if err != nil {
			return nil, err
		}
		if m.Equal(a) || failed[m.Key()] {
			return nil, nil
		}
		return m, nil
	}
	detected := func(a, b *change.Change) compare.Verdict {
		return comparisons[pairKey(a, b)].Verdict
	}
	insertions, err := exploration.Speculate(j.Changes, detected, onUnknown, midpoint, j.Options.Levels)
	if err != nil {
		if change.IsDataInconsistency(err) {
			j.fail(ctx, err.Error())
			return j, append(effects, notify(NotifyFailed)), nil
		}
		return nil, nil, skerr.Wrapf(err, "speculating for job %s", j.ID)
	}
	j.Changes = exploration.Apply(j.Changes, insertions)
	for _, ins := range insertions {
		j.Targets[ins.Change.Key()] = j.Options.InitialAttempts
	}

	if len(insertions) == 0 && !unknown {
		j.complete(ctx, deps.Resolver)
		return j, append(effects, notify(NotifyCompleted)), nil
	}
	return j, append(effects, Effect{Kind: EffectReschedule}), nil
}

func notify(n Notification) Effect {
	return Effect{Kind: EffectNotify, Notification: n}
}

func pairKey(a, b *change.Change) string {
	return a.Key() + "|" + b.Key()
}

func (j *Job) fail(ctx context.Context, reason string) {
	sklog.Warningf("Job %s failed: %s", j.ID, reason)
	j.State = Failed
	j.FailureReason = reason
	j.FinishedAt = now.Now(ctx)
	jobsFinishedFailed.Inc(1)
}

// attemptKey is the idempotency key for one try of one Attempt.
func (j *Job) attemptKey(c *change.Change, index int, try int) string {
	return fmt.Sprintf("%s/%x/%d/%d", j.ID, sha1.Sum([]byte(c.Key())), index, try)
}

// pollRunning checks on every Attempt started by an earlier tick.
func (j *Job) pollRunning(ctx context.Context, runner attempt.Runner) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(j.Options.MaxInFlight)
	for _, c := range j.Changes {
		for _, a := range j.Attempts[c.Key()] {
			if a.State != AttemptRunning {
				continue
			}
			a := a
			g.Go(func() error {
				status, err := runner.Poll(gCtx, a.ExecutionID)
				if err != nil {
					if gCtx.Err() != nil {
						return skerr.Wrap(gCtx.Err())
					}
					sklog.Warningf("Failed to poll %s, will try again next tick: %s", a.ExecutionID, err)
					return nil
				}
				j.applyStatus(a, status)
				return nil
			})
		}
	}
	return g.Wait()
}

type startRequest struct {
	change *change.Change
	index  int
	a      *Attempt
}

// startPending creates Attempts up to each Change's target and starts every
// pending one, as long as MaxInFlight allows.
func (j *Job) startPending(ctx context.Context, runner attempt.Runner) error {
	inFlight := 0
	var requests []startRequest
	for _, c := range j.Changes {
		key := c.Key()
		counts := j.counts(c)
		inFlight += counts.running
		// A Change that only ever fails permanently gets no new Attempts.
		doomed := counts.failed > 0 && counts.completed == 0
		if !doomed {
			for len(j.Attempts[key]) < j.Targets[key] {
				j.Attempts[key] = append(j.Attempts[key], &Attempt{State: AttemptPending})
			}
		}
		for i, a := range j.Attempts[key] {
			if a.State == AttemptPending {
				requests = append(requests, startRequest{change: c, index: i, a: a})
			}
		}
	}
	if budget := j.Options.MaxInFlight - inFlight; len(requests) > budget {
		if budget < 0 {
			budget = 0
		}
		requests = requests[:budget]
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(j.Options.MaxInFlight)
	for _, req := range requests {
		req := req
		g.Go(func() error {
			a := req.a
			a.Tries++
			id, err := runner.Start(gCtx, j.attemptKey(req.change, req.index, a.Tries), req.change, j.Options.Args)
			if err != nil {
				if gCtx.Err() != nil {
					return skerr.Wrap(gCtx.Err())
				}
				j.applyFailure(a, err)
				return nil
			}
			attemptsStartedCounter.Inc(1)
			a.ExecutionID = id
			a.State = AttemptRunning
			status, err := runner.Poll(gCtx, id)
			if err != nil {
				sklog.Warningf("Failed to poll %s after starting it: %s", id, err)
				return nil
			}
			j.applyStatus(a, status)
			return nil
		})
	}
	return g.Wait()
}

func (j *Job) applyStatus(a *Attempt, status *attempt.Status) {
	if status == nil {
		return
	}
	switch status.State {
	case attempt.Completed:
		if len(status.Values) == 0 {
			// Nothing to compare, so it can't count as a measurement.
			j.applyFailure(a, skerr.Fmt("execution %s completed without values", a.ExecutionID))
			return
		}
		a.State = AttemptCompleted
		a.Values = status.Values
		a.LastError = ""
	case attempt.Failed:
		err := status.Err
		if err == nil {
			err = skerr.Fmt("execution %s failed", a.ExecutionID)
		}
		j.applyFailure(a, err)
	}
}

// applyFailure puts a back to pending if the failure is retryable and the
// Attempt has tries left, otherwise marks it failed.
func (j *Job) applyFailure(a *Attempt, err error) {
	a.LastError = err.Error()
	if attempt.IsRetryable(err) && a.Tries < j.Options.RetryBudget {
		a.State = AttemptPending
		a.ExecutionID = ""
		return
	}
	a.State = AttemptFailed
	attemptsFailedCounter.Inc(1)
}

// dropDeadChanges moves Changes with no completed and no outstanding
// Attempts into FailedChanges, and records the pair of live Changes around
// each one in FailedGaps. It returns a failure reason if one of the
// endpoints is dead, since the range itself can no longer be judged.
func (j *Job) dropDeadChanges() string {
	live := make([]*change.Change, 0, len(j.Changes))
	gap := false
	for i, c := range j.Changes {
		counts := j.counts(c)
		dead := len(j.Attempts[c.Key()]) > 0 && counts.completed == 0 && counts.outstanding() == 0
		if !dead {
			if gap {
				j.FailedGaps = append(j.FailedGaps, pairKey(live[len(live)-1], c))
				gap = false
			}
			live = append(live, c)
			continue
		}
		if i == 0 || i == len(j.Changes)-1 {
			return fmt.Sprintf("every attempt at measuring %s failed: %s", c, j.lastError(c))
		}
		sklog.Infof("Job %s: dropping %s, every attempt failed: %s", j.ID, c, j.lastError(c))
		j.FailedChanges = append(j.FailedChanges, c)
		gap = true
	}
	j.Changes = live
	return ""
}

func (j *Job) lastError(c *change.Change) string {
	atts := j.Attempts[c.Key()]
	for i := len(atts) - 1; i >= 0; i-- {
		if atts[i].LastError != "" {
			return atts[i].LastError
		}
	}
	return ""
}

// compareAll records a Comparison for every adjacent pair and returns them
// keyed by pairKey.
func (j *Job) compareAll(detector Detector) (map[string]*Comparison, error) {
	ret := make(map[string]*Comparison, len(j.Changes))
	j.Comparisons = j.Comparisons[:0]
	for i := 0; i+1 < len(j.Changes); i++ {
		a, b := j.Changes[i], j.Changes[i+1]
		cmp := &Comparison{Before: a, After: b, Verdict: compare.Unknown}
		if !j.ready(a) || !j.ready(b) {
			cmp.Pending = true
		} else {
			res, err := detector.Compare(j.Values(a), j.Values(b))
			if err != nil {
				return nil, skerr.Wrapf(err, "comparing %s and %s", a, b)
			}
			cmp.Verdict = res.Verdict
			cmp.PValue = res.PValue
			if cmp.Verdict == compare.Unknown && j.exhausted(a) && j.exhausted(b) {
				cmp.Verdict = compare.Same
				cmp.Exhausted = true
			}
		}
		ret[pairKey(a, b)] = cmp
		j.Comparisons = append(j.Comparisons, cmp)
	}
	return ret, nil
}

// exhausted returns true if c has run every Attempt it ever will.
func (j *Job) exhausted(c *change.Change) bool {
	counts := j.counts(c)
	return counts.outstanding() == 0 && j.Targets[c.Key()] >= j.Options.MaxAttempts
}

// raiseTarget doubles the Attempts for both Changes of an inconclusive pair,
// once the Change has finished what it was already asked to run.
func (j *Job) raiseTarget(a, b *change.Change) {
	for _, c := range []*change.Change{a, b} {
		key := c.Key()
		counts := j.counts(c)
		if counts.outstanding() > 0 || counts.finished() < j.Targets[key] {
			continue
		}
		target := j.Targets[key] * 2
		if target > j.Options.MaxAttempts {
			target = j.Options.MaxAttempts
		}
		j.Targets[key] = target
	}
}

// complete records the Differences found and moves the Job to Completed.
func (j *Job) complete(ctx context.Context, resolver change.Resolver) {
	j.Differences = nil
	for i, cmp := range j.Comparisons {
		if cmp.Verdict != compare.Different {
			continue
		}
		d := &Difference{
			Index:  i + 1,
			Before: cmp.Before,
			After:  cmp.After,
			PValue: cmp.PValue,
		}
		commit, err := change.DifferingCommit(cmp.Before, cmp.After)
		if err != nil {
			sklog.Warningf("Job %s: can't tell which commit differs between %s and %s: %s", j.ID, cmp.Before, cmp.After, err)
		} else if !adjacent(ctx, resolver, cmp.Before, cmp.After) {
			sklog.Infof("Job %s: difference between %s and %s spans changes that could not be measured", j.ID, cmp.Before, cmp.After)
			d.Gap = true
		} else {
			d.Commit = commit
			info, err := resolver.CommitInfo(ctx, commit.Repository, commit.GitHash)
			if err != nil {
				sklog.Warningf("Job %s: failed to look up %s: %s", j.ID, commit, err)
			} else {
				d.Culprit = info
			}
		}
		j.Differences = append(j.Differences, d)
	}
	j.State = Completed
	j.FinishedAt = now.Now(ctx)
	jobsFinishedCompleted.Inc(1)
	sklog.Infof("Job %s completed after %d ticks with %d differences", j.ID, j.Ticks, len(j.Differences))
}

// adjacent returns true if after is one commit past before.
func adjacent(ctx context.Context, resolver change.Resolver, before, after *change.Change) bool {
	m, err := change.Midpoint(ctx, resolver, before, after)
	if err != nil {
		sklog.Warningf("Finding the midpoint of %s and %s: %s", before, after, err)
		return false
	}
	return m.Equal(before)
}
