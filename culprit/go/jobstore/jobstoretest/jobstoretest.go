// Package jobstoretest has common code for tests of implementations of
// jobstore.Store.
package jobstoretest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/culprit/go/job"
	"go.skia.org/culprit/culprit/go/jobstore"
	"go.skia.org/culprit/culprit/go/resolver/testutils"
	"go.skia.org/culprit/go/now"
)

const repoURL = "https://example.googlesource.com/repo"

// NewJob returns an unsaved Job with the given ID, created at the given
// number of seconds past a fixed time.
func NewJob(t *testing.T, id string, createdOffset int) *job.Job {
	repo := testutils.NewLinearRepo(repoURL, 10)
	ts := time.Date(2024, time.March, 1, 12, 0, createdOffset, 0, time.UTC)
	ctx := context.WithValue(context.Background(), now.ContextKey, ts)
	j, err := job.New(ctx, id, []*change.Change{repo.Change(0), repo.Change(9)}, job.Options{}, "1234")
	require.NoError(t, err)
	return j
}

// CreateLoad checks that a created Job reads back unchanged.
func CreateLoad(t *testing.T, s jobstore.Store) {
	ctx := context.Background()
	j := NewJob(t, "job-a", 0)
	require.NoError(t, s.Create(ctx, j))
	assert.Equal(t, int64(1), j.Version)

	got, err := s.Load(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, job.Created, got.State)
	assert.Equal(t, j.Options, got.Options)
	assert.Equal(t, "1234", got.BugID)
	require.Len(t, got.Changes, 2)
	assert.True(t, j.Changes[0].Equal(got.Changes[0]))
	assert.True(t, j.CreatedAt.Equal(got.CreatedAt))
}

// CreateTwice checks that IDs are unique.
func CreateTwice(t *testing.T, s jobstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewJob(t, "job-a", 0)))
	err := s.Create(ctx, NewJob(t, "job-a", 1))
	require.Error(t, err)
	assert.True(t, jobstore.IsAlreadyExists(err))
}

// LoadMissing checks ErrNotFound.
func LoadMissing(t *testing.T, s jobstore.Store) {
	_, err := s.Load(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, jobstore.IsNotFound(err))
}

// SaveBumpsVersion checks that Save increments Version.
func SaveBumpsVersion(t *testing.T, s jobstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewJob(t, "job-a", 0)))

	j, err := s.Load(ctx, "job-a")
	require.NoError(t, err)
	j.State = job.Running
	j.Ticks = 1
	require.NoError(t, s.Save(ctx, j, 1))
	assert.Equal(t, int64(2), j.Version)

	got, err := s.Load(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, job.Running, got.State)
	assert.Equal(t, 1, got.Ticks)
}

// SaveStale checks that only one of two writers of the same version wins.
func SaveStale(t *testing.T, s jobstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewJob(t, "job-a", 0)))

	first, err := s.Load(ctx, "job-a")
	require.NoError(t, err)
	second, err := s.Load(ctx, "job-a")
	require.NoError(t, err)

	first.Ticks = 1
	require.NoError(t, s.Save(ctx, first, first.Version))
	second.Ticks = 100
	err = s.Save(ctx, second, second.Version)
	require.Error(t, err)
	assert.True(t, jobstore.IsConcurrentUpdate(err))
	assert.Equal(t, int64(1), second.Version)

	got, err := s.Load(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Ticks)
}

// SaveMissing checks that Save doesn't create Jobs.
func SaveMissing(t *testing.T, s jobstore.Store) {
	err := s.Save(context.Background(), NewJob(t, "job-a", 0), 1)
	require.Error(t, err)
	assert.True(t, jobstore.IsNotFound(err))
}

// ConcurrentSaves checks that exactly one of many racing writers wins.
func ConcurrentSaves(t *testing.T, s jobstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewJob(t, "job-a", 0)))

	const writers = 10
	var wg sync.WaitGroup
	var mutex sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < writers; i++ {
		j, err := s.Load(ctx, "job-a")
		require.NoError(t, err)
		wg.Add(1)
		go func(j *job.Job, i int) {
			defer wg.Done()
			j.Ticks = i
			err := s.Save(ctx, j, 1)
			mutex.Lock()
			defer mutex.Unlock()
			if err == nil {
				wins++
			} else if jobstore.IsConcurrentUpdate(err) {
				conflicts++
			}
		}(j, i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)
}

// List checks ordering and limits.
func List(t *testing.T, s jobstore.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Create(ctx, NewJob(t, fmt.Sprintf("job-%d", i), i)))
	}
	jobs, err := s.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "job-4", jobs[0].ID)
	assert.Equal(t, "job-3", jobs[1].ID)
	assert.Equal(t, "job-2", jobs[2].ID)
}

// UpdateWithRetries checks that the helper reloads and retries on conflict.
func UpdateWithRetries(t *testing.T, s jobstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewJob(t, "job-a", 0)))

	calls := 0
	j, err := jobstore.UpdateWithRetries(ctx, s, "job-a", func(j *job.Job) error {
		calls++
		if calls == 1 {
			// Sneak in a write so the first Save conflicts.
			other, err := s.Load(ctx, "job-a")
			require.NoError(t, err)
			require.NoError(t, s.Save(ctx, other, other.Version))
		}
		j.Cancelled = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, j.Cancelled)
	assert.Equal(t, int64(3), j.Version)
}

// SubTestFunction is a func we will call to test one aspect of an
// implementation of jobstore.Store.
type SubTestFunction func(t *testing.T, s jobstore.Store)

// SubTests are all the subtests we have for jobstore.Store.
var SubTests = map[string]SubTestFunction{
	"CreateLoad":        CreateLoad,
	"CreateTwice":       CreateTwice,
	"LoadMissing":       LoadMissing,
	"SaveBumpsVersion":  SaveBumpsVersion,
	"SaveStale":         SaveStale,
	"SaveMissing":       SaveMissing,
	"ConcurrentSaves":   ConcurrentSaves,
	"List":              List,
	"UpdateWithRetries": UpdateWithRetries,
}
