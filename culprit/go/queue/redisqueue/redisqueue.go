// Package redisqueue implements queue.Queue on Redis, so that several worker
// processes can share one queue and survive restarts.
//
// Waiting IDs are kept in a list, with a set alongside it to drop duplicates.
// Dequeued IDs are recorded in a sorted set scored by the time their lease
// expires, and in a hash from ID to the token of the Lease. IDs enqueued
// while leased go into a set and are put back on the list when the Lease
// ends. Expired leases are put back on the list by the next Dequeue.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"go.skia.org/culprit/culprit/go/queue"
	"go.skia.org/culprit/go/metrics2"
	"go.skia.org/culprit/go/now"
	"go.skia.org/culprit/go/skerr"
	"go.skia.org/culprit/go/sklog"
)

const (
	// DefaultLeaseDuration is how long a dequeued ID may go unacknowledged
	// before it is delivered again.
	DefaultLeaseDuration = 10 * time.Minute

	// pollInterval bounds each blocking pop so that ctx is checked.
	pollInterval = time.Second
)

// All scripts take the keys in the order of Queue.keys():
// waiting, pending, leased, tokens, deferred.

// enqueueScript defers ARGV[1] if it is leased, otherwise pushes it onto the
// list unless it is already waiting.
var enqueueScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[3], ARGV[1]) then
	redis.call('SADD', KEYS[5], ARGV[1])
	return 2
end
if redis.call('SADD', KEYS[1], ARGV[1]) == 1 then
	redis.call('RPUSH', KEYS[2], ARGV[1])
	return 1
end
return 0
`)

// leaseScript records the Lease of the popped ID ARGV[1], expiring at ARGV[2]
// with token ARGV[3].
var leaseScript = redis.NewScript(`
redis.call('SREM', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
redis.call('HSET', KEYS[4], ARGV[1], ARGV[3])
return 1
`)

// finishScript ends the Lease on ARGV[1] if its token is still ARGV[2]. The ID
// goes back on the list if ARGV[3] is "1" or it was enqueued while leased.
var finishScript = redis.NewScript(`
if redis.call('HGET', KEYS[4], ARGV[1]) ~= ARGV[2] then
	return 0
end
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
local deferred = redis.call('SREM', KEYS[5], ARGV[1])
if ARGV[3] == '1' or deferred == 1 then
	if redis.call('SADD', KEYS[1], ARGV[1]) == 1 then
		redis.call('RPUSH', KEYS[2], ARGV[1])
	end
end
return 1
`)

// reapScript puts ARGV[1] back on the list if its Lease expired at or before
// ARGV[2].
var reapScript = redis.NewScript(`
local expiry = redis.call('ZSCORE', KEYS[3], ARGV[1])
if not expiry or tonumber(expiry) > tonumber(ARGV[2]) then
	return 0
end
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
redis.call('SREM', KEYS[5], ARGV[1])
if redis.call('SADD', KEYS[1], ARGV[1]) == 1 then
	redis.call('RPUSH', KEYS[2], ARGV[1])
end
return 1
`)

// Queue implements queue.Queue.
type Queue struct {
	client        redis.UniversalClient
	leaseDuration time.Duration

	waitingKey  string
	pendingKey  string
	leasedKey   string
	tokensKey   string
	deferredKey string

	redelivered metrics2.Counter
	waiting     metrics2.Int64Metric
}

// New returns a Queue that keeps its keys under the given prefix.
func New(client redis.UniversalClient, prefix string, leaseDuration time.Duration) *Queue {
	if leaseDuration <= 0 {
		leaseDuration = DefaultLeaseDuration
	}
	tags := map[string]string{"prefix": prefix}
	return &Queue{
		client:        client,
		leaseDuration: leaseDuration,
		waitingKey:    fmt.Sprintf("%s:waiting", prefix),
		pendingKey:    fmt.Sprintf("%s:pending", prefix),
		leasedKey:     fmt.Sprintf("%s:leased", prefix),
		tokensKey:     fmt.Sprintf("%s:tokens", prefix),
		deferredKey:   fmt.Sprintf("%s:deferred", prefix),
		redelivered:   metrics2.GetCounter("culprit_queue_redelivered", tags),
		waiting:       metrics2.GetInt64Metric("culprit_queue_waiting", tags),
	}
}

func (q *Queue) keys() []string {
	return []string{q.waitingKey, q.pendingKey, q.leasedKey, q.tokensKey, q.deferredKey}
}

// Enqueue implements queue.Queue.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	if err := enqueueScript.Run(ctx, q.client, q.keys(), jobID).Err(); err != nil {
		return skerr.Wrapf(err, "enqueueing %s", jobID)
	}
	return nil
}

// reap puts IDs whose lease has expired back on the queue, and reports the
// length of the queue.
func (q *Queue) reap(ctx context.Context) error {
	nowMs := strconv.FormatInt(now.Now(ctx).UnixMilli(), 10)
	expired, err := q.client.ZRangeByScore(ctx, q.leasedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: nowMs,
	}).Result()
	if err != nil {
		return skerr.Wrapf(err, "listing expired leases")
	}
	for _, id := range expired {
		// Only the caller whose script removes the lease redelivers it.
		n, err := reapScript.Run(ctx, q.client, q.keys(), id, nowMs).Int()
		if err != nil {
			return skerr.Wrapf(err, "redelivering expired lease of %s", id)
		}
		if n == 0 {
			continue
		}
		sklog.Warningf("Lease on job %s expired, delivering it again.", id)
		q.redelivered.Inc(1)
	}
	n, err := q.client.LLen(ctx, q.pendingKey).Result()
	if err != nil {
		return skerr.Wrapf(err, "measuring %s", q.pendingKey)
	}
	q.waiting.Update(n)
	return nil
}

// Dequeue implements queue.Queue.
func (q *Queue) Dequeue(ctx context.Context) (*queue.Lease, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, skerr.Wrap(err)
		}
		if err := q.reap(ctx); err != nil {
			return nil, err
		}
		res, err := q.client.BLPop(ctx, pollInterval, q.pendingKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, skerr.Wrap(ctx.Err())
			}
			return nil, skerr.Wrapf(err, "popping from %s", q.pendingKey)
		}
		// res is [key, value].
		id := res[1]
		token := uuid.NewString()
		expiry := now.Now(ctx).Add(q.leaseDuration).UnixMilli()
		if err := leaseScript.Run(ctx, q.client, q.keys(), id, expiry, token).Err(); err != nil {
			return nil, skerr.Wrapf(err, "leasing %s", id)
		}
		return queue.NewLease(id, q.finishFunc(id, token, false), q.finishFunc(id, token, true)), nil
	}
}

func (q *Queue) finishFunc(id, token string, requeue bool) func(context.Context) error {
	flag := "0"
	if requeue {
		flag = "1"
	}
	return func(ctx context.Context) error {
		n, err := finishScript.Run(ctx, q.client, q.keys(), id, token, flag).Int()
		if err != nil {
			return skerr.Wrapf(err, "ending lease on %s", id)
		}
		if n == 0 {
			sklog.Warningf("Lease on job %s had already ended.", id)
		}
		return nil
	}
}

var _ queue.Queue = (*Queue)(nil)
