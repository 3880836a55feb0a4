package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.skia.org/culprit/culprit/go/jobstore/jobstoretest"
)

func TestStore(t *testing.T) {
	for name, subTest := range jobstoretest.SubTests {
		t.Run(name, func(t *testing.T) {
			subTest(t, New())
		})
	}
}

func TestLoad_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	j := jobstoretest.NewJob(t, "job-a", 0)
	require.NoError(t, s.Create(ctx, j))
	j.Ticks = 7

	got, err := s.Load(ctx, "job-a")
	require.NoError(t, err)
	assert.Zero(t, got.Ticks)
	got.Ticks = 9

	again, err := s.Load(ctx, "job-a")
	require.NoError(t, err)
	assert.Zero(t, again.Ticks)
}
