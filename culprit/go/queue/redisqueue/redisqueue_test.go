package redisqueue

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.skia.org/culprit/culprit/go/queue/queuetest"
	"go.skia.org/culprit/go/emulators"
	"go.skia.org/culprit/go/now"
)

func newClient(t *testing.T) *redis.Client {
	addr := emulators.RequireEmulator(t, emulators.Redis)
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

// prefix keeps tests that share a Redis instance apart.
func prefix(t *testing.T) string {
	return fmt.Sprintf("test-%s-%s", strings.ReplaceAll(t.Name(), "/", "-"), uuid.NewString())
}

func TestQueue(t *testing.T) {
	for name, subTest := range queuetest.SubTests {
		t.Run(name, func(t *testing.T) {
			subTest(t, New(newClient(t), prefix(t), time.Minute))
		})
	}
}

func TestDequeue_LeaseExpires_IsDeliveredAgain(t *testing.T) {
	ctx := now.TimeTravelingContext(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC))
	q := New(newClient(t), prefix(t), time.Minute)
	require.NoError(t, q.Enqueue(ctx, "a"))

	l, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", l.JobID)

	ctx.Advance(2 * time.Minute)
	again, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", again.JobID)
	require.NoError(t, again.Ack(ctx))

	// The first Lease is gone, so acknowledging it is harmless.
	require.NoError(t, l.Ack(ctx))
}

func TestLease_ExpiredLeaseAck_DoesNotEndNewerLease(t *testing.T) {
	ctx := now.TimeTravelingContext(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC))
	q := New(newClient(t), prefix(t), time.Minute)
	require.NoError(t, q.Enqueue(ctx, "a"))

	stale, err := q.Dequeue(ctx)
	require.NoError(t, err)
	ctx.Advance(2 * time.Minute)
	current, err := q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, stale.Ack(ctx))
	require.NoError(t, stale.Release(ctx))
	require.NoError(t, q.Enqueue(ctx, "a"))

	// current still holds the only Lease, so nothing is delivered.
	tctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(tctx)
	require.Error(t, err)

	require.NoError(t, current.Ack(ctx))
	next, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", next.JobID)
	require.NoError(t, next.Ack(ctx))
}

func TestDequeue_AckedLease_NotDeliveredAgain(t *testing.T) {
	ctx := now.TimeTravelingContext(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC))
	q := New(newClient(t), prefix(t), time.Minute)
	require.NoError(t, q.Enqueue(ctx, "a"))

	l, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Ack(ctx))

	ctx.Advance(2 * time.Minute)
	tctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(tctx)
	require.Error(t, err)
}

func TestNew_DefaultLeaseDuration(t *testing.T) {
	q := New(nil, "p", 0)
	assert.Equal(t, DefaultLeaseDuration, q.leaseDuration)
	assert.Equal(t, "p:pending", q.pendingKey)
	assert.Equal(t, []string{"p:waiting", "p:pending", "p:leased", "p:tokens", "p:deferred"}, q.keys())
}
