// Package queuetest has common code for tests of implementations of
// queue.Queue.
package queuetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.skia.org/culprit/culprit/go/queue"
)

// emptyWait is how long a Dequeue is given to show that nothing is waiting.
const emptyWait = 100 * time.Millisecond

func dequeue(t *testing.T, q queue.Queue) *queue.Lease {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	l, err := q.Dequeue(ctx)
	require.NoError(t, err)
	return l
}

func assertEmpty(t *testing.T, q queue.Queue) {
	ctx, cancel := context.WithTimeout(context.Background(), emptyWait)
	defer cancel()
	l, err := q.Dequeue(ctx)
	require.Error(t, err)
	assert.Nil(t, l)
}

// FIFO checks that IDs come out in the order they went in.
func FIFO(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a"))
	require.NoError(t, q.Enqueue(ctx, "b"))
	require.NoError(t, q.Enqueue(ctx, "c"))
	for _, want := range []string{"a", "b", "c"} {
		l := dequeue(t, q)
		assert.Equal(t, want, l.JobID)
		require.NoError(t, l.Ack(ctx))
	}
	assertEmpty(t, q)
}

// Duplicates checks that a waiting ID is only delivered once.
func Duplicates(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a"))
	require.NoError(t, q.Enqueue(ctx, "b"))
	require.NoError(t, q.Enqueue(ctx, "a"))
	assert.Equal(t, "a", dequeue(t, q).JobID)
	assert.Equal(t, "b", dequeue(t, q).JobID)
	assertEmpty(t, q)
}

// EnqueueWhileLeased checks that the holder of a Lease can put the same ID
// back on the queue, and that it is delivered after the Ack.
func EnqueueWhileLeased(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a"))
	l := dequeue(t, q)
	require.NoError(t, q.Enqueue(ctx, "a"))
	require.NoError(t, l.Ack(ctx))

	again := dequeue(t, q)
	assert.Equal(t, "a", again.JobID)
	require.NoError(t, again.Ack(ctx))
	assertEmpty(t, q)
}

// OneLeasePerID checks that an ID enqueued while leased is not delivered to
// a second consumer until the first Lease ends.
func OneLeasePerID(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a"))
	l := dequeue(t, q)
	require.NoError(t, q.Enqueue(ctx, "a"))
	assertEmpty(t, q)

	// Release puts the ID back once, however often it was enqueued.
	require.NoError(t, l.Release(ctx))
	again := dequeue(t, q)
	assert.Equal(t, "a", again.JobID)
	require.NoError(t, again.Ack(ctx))
	assertEmpty(t, q)
}

// FinishedLease checks that acknowledging a Lease a second time does not
// end a newer Lease on the same ID.
func FinishedLease(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a"))
	first := dequeue(t, q)
	require.NoError(t, first.Ack(ctx))

	require.NoError(t, q.Enqueue(ctx, "a"))
	second := dequeue(t, q)
	require.NoError(t, q.Enqueue(ctx, "a"))

	require.NoError(t, first.Ack(ctx))
	require.NoError(t, first.Release(ctx))
	assertEmpty(t, q)

	require.NoError(t, second.Ack(ctx))
	third := dequeue(t, q)
	assert.Equal(t, "a", third.JobID)
	require.NoError(t, third.Ack(ctx))
	assertEmpty(t, q)
}

// Release checks that a released ID is delivered again.
func Release(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a"))
	l := dequeue(t, q)
	require.NoError(t, l.Release(ctx))

	again := dequeue(t, q)
	assert.Equal(t, "a", again.JobID)
	require.NoError(t, again.Ack(ctx))
	assertEmpty(t, q)
}

// DequeueCancelled checks that Dequeue gives up when its context is done.
func DequeueCancelled(t *testing.T, q queue.Queue) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx)
	require.Error(t, err)
}

// DequeueBlocks checks that a waiting Dequeue sees a later Enqueue.
func DequeueBlocks(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	got := make(chan string, 1)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		l, err := q.Dequeue(ctx)
		if err != nil {
			got <- ""
			return
		}
		got <- l.JobID
	}()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, "late"))
	assert.Equal(t, "late", <-got)
}

// Concurrent checks that every ID is delivered exactly once to a set of
// competing consumers.
func Concurrent(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, q.Enqueue(ctx, fmt.Sprintf("job-%d", i)))
	}

	var mutex sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
				l, err := q.Dequeue(ctx)
				cancel()
				if err != nil {
					return
				}
				mutex.Lock()
				seen[l.JobID]++
				mutex.Unlock()
				_ = l.Ack(context.Background())
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, id)
	}
}

// SubTestFunction is a func we will call to test one aspect of an
// implementation of queue.Queue.
type SubTestFunction func(t *testing.T, q queue.Queue)

// SubTests are all the subtests we have for queue.Queue.
var SubTests = map[string]SubTestFunction{
	"FIFO":               FIFO,
	"Duplicates":         Duplicates,
	"EnqueueWhileLeased": EnqueueWhileLeased,
	"OneLeasePerID":      OneLeasePerID,
	"FinishedLease":      FinishedLease,
	"Release":            Release,
	"DequeueCancelled":   DequeueCancelled,
	"DequeueBlocks":      DequeueBlocks,
	"Concurrent":         Concurrent,
}
