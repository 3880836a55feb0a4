// Package worker runs Job ticks pulled from a queue.
package worker

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"

	"go.skia.org/culprit/culprit/go/job"
	"go.skia.org/culprit/culprit/go/jobstore"
	"go.skia.org/culprit/culprit/go/queue"
	"go.skia.org/culprit/go/metrics2"
	"go.skia.org/culprit/go/skerr"
	"go.skia.org/culprit/go/sklog"
)

// Notifier posts Job notifications.
type Notifier interface {
	Notify(ctx context.Context, j *job.Job, n job.Notification) error
}

// Worker takes Job IDs from a queue and runs one tick of each.
type Worker struct {
	store    jobstore.Store
	queue    queue.Queue
	deps     job.Deps
	notifier Notifier
	limiter  *rate.Limiter

	ticksOK       metrics2.Counter
	ticksConflict metrics2.Counter
	ticksError    metrics2.Counter
	notifyErrors  metrics2.Counter
}

// New returns a new Worker. A nil limiter does not limit the rate of ticks.
func New(store jobstore.Store, q queue.Queue, deps job.Deps, notifier Notifier, limiter *rate.Limiter) *Worker {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Worker{
		store:         store,
		queue:         q,
		deps:          deps,
		notifier:      notifier,
		limiter:       limiter,
		ticksOK:       metrics2.GetCounter("culprit_worker_ticks", map[string]string{"result": "ok"}),
		ticksConflict: metrics2.GetCounter("culprit_worker_ticks", map[string]string{"result": "conflict"}),
		ticksError:    metrics2.GetCounter("culprit_worker_ticks", map[string]string{"result": "error"}),
		notifyErrors:  metrics2.GetCounter("culprit_worker_notify_errors"),
	}
}

// Run processes queue entries with the given number of goroutines until ctx
// is done.
func (w *Worker) Run(ctx context.Context, parallelism int) {
	if parallelism < 1 {
		parallelism = 1
	}
	sklog.Infof("Starting %d workers.", parallelism)
	var wg sync.WaitGroup
	for i := 0; i < parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				if err := w.ProcessOne(ctx); err != nil && ctx.Err() == nil {
					sklog.Errorf("Processing queue entry: %s", err)
				}
			}
		}()
	}
	wg.Wait()
	sklog.Infof("Workers stopped.")
}

// ProcessOne waits for a Job ID on the queue and runs one tick of that Job.
//
// The queue entry is released, and so delivered again, if the tick could not
// be saved. A Job that no longer exists is dropped from the queue.
func (w *Worker) ProcessOne(ctx context.Context) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return skerr.Wrap(err)
	}
	lease, err := w.queue.Dequeue(ctx)
	if err != nil {
		return skerr.Wrapf(err, "dequeueing")
	}
	timer := metrics2.NewTimer("culprit_worker_process_duration")
	err = w.TickJob(ctx, lease.JobID)
	timer.Stop()
	switch {
	case err == nil:
		w.ticksOK.Inc(1)
		return skerr.Wrap(lease.Ack(ctx))
	case jobstore.IsNotFound(err):
		sklog.Warningf("Job %s is queued but does not exist, dropping it: %s", lease.JobID, err)
		w.ticksError.Inc(1)
		return skerr.Wrap(lease.Ack(ctx))
	case jobstore.IsConcurrentUpdate(err):
		sklog.Warningf("Job %s was saved by someone else during the tick, it will be ticked again.", lease.JobID)
		w.ticksConflict.Inc(1)
	default:
		w.ticksError.Inc(1)
	}
	if releaseErr := lease.Release(ctx); releaseErr != nil {
		sklog.Errorf("Releasing job %s: %s", lease.JobID, releaseErr)
	}
	return err
}

// TickJob loads the Job with the given ID, advances it by one tick, saves it,
// and then carries out the effects of the tick.
//
// If the save fails nothing else happens, so the tick can be safely repeated.
func (w *Worker) TickJob(ctx context.Context, jobID string) error {
	snapshot, err := w.store.Load(ctx, jobID)
	if err != nil {
		return skerr.Wrapf(err, "loading job %s", jobID)
	}
	next, effects, err := job.Tick(ctx, snapshot, w.deps)
	if err != nil {
		return skerr.Wrapf(err, "ticking job %s", jobID)
	}
	if snapshot.State.IsTerminal() {
		return nil
	}
	if err := w.store.Save(ctx, next, snapshot.Version); err != nil {
		return skerr.Wrapf(err, "saving job %s", jobID)
	}
	if next.State != snapshot.State {
		sklog.Infof("Job %s is now %s.", jobID, next.State)
	}
	return w.applyEffects(ctx, next, effects)
}

// applyEffects runs the effects in order. Failing to notify is logged but not
// returned, since the tick that asked for it is already saved and will not
// ask again. Failing to reschedule is returned so that the queue entry is
// delivered again.
func (w *Worker) applyEffects(ctx context.Context, j *job.Job, effects []job.Effect) error {
	var notifyErrs *multierror.Error
	for _, e := range effects {
		switch e.Kind {
		case job.EffectNotify:
			if err := w.notifier.Notify(ctx, j, e.Notification); err != nil {
				notifyErrs = multierror.Append(notifyErrs, err)
			}
		case job.EffectReschedule:
			if err := w.queue.Enqueue(ctx, j.ID); err != nil {
				return skerr.Wrapf(err, "rescheduling job %s", j.ID)
			}
		default:
			sklog.Errorf("Job %s asked for unknown effect %q.", j.ID, e.Kind)
		}
	}
	if err := notifyErrs.ErrorOrNil(); err != nil {
		w.notifyErrors.Inc(int64(len(notifyErrs.Errors)))
		sklog.Errorf("Notifying about job %s: %s", j.ID, err)
	}
	return nil
}
