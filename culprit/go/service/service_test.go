package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/culprit/go/compare"
	"go.skia.org/culprit/culprit/go/job"
	"go.skia.org/culprit/culprit/go/jobstore"
	storememory "go.skia.org/culprit/culprit/go/jobstore/memory"
	queuememory "go.skia.org/culprit/culprit/go/queue/memory"
	"go.skia.org/culprit/culprit/go/resolver/testutils"
)

const repoURL = "https://example.googlesource.com/repo"

func setup(t *testing.T) (*Service, *testutils.LinearRepo, *storememory.Store, *queuememory.Queue) {
	repo := testutils.NewLinearRepo(repoURL, 10)
	store := storememory.New()
	q := queuememory.New()
	return New(store, q, repo, job.Options{InitialAttempts: 5}), repo, store, q
}

func request(from, to string) Request {
	return Request{
		Start: change.Request{Commits: []change.CommitRequest{{Repository: repoURL, Ref: from}}},
		End:   change.Request{Commits: []change.CommitRequest{{Repository: repoURL, Ref: to}}},
		BugID: "777",
	}
}

func TestCreateJob_StoresAndQueues(t *testing.T) {
	ctx := context.Background()
	s, repo, _, q := setup(t)

	id, err := s.CreateJob(ctx, request(testutils.Hash(2)[:10], "HEAD"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, q.Len())

	j, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, job.Created, j.State)
	assert.Equal(t, "777", j.BugID)
	require.Len(t, j.Changes, 2)
	assert.True(t, repo.Change(2).Equal(j.Changes[0]))
	assert.True(t, repo.Change(9).Equal(j.Changes[1]))
	assert.Equal(t, 5, j.Options.InitialAttempts)
	assert.Equal(t, job.DefaultOptions.Levels, j.Options.Levels)
}

func TestCreateJob_RequestOptionsOverrideDefaults(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := setup(t)
	req := request(testutils.Hash(0), "HEAD")
	req.Options.InitialAttempts = 12

	id, err := s.CreateJob(ctx, req)
	require.NoError(t, err)
	j, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 12, j.Options.InitialAttempts)
}

func TestCreateJob_UnknownRef_Error(t *testing.T) {
	ctx := context.Background()
	s, _, _, q := setup(t)

	_, err := s.CreateJob(ctx, request("ffffffffff", "HEAD"))
	require.Error(t, err)
	assert.True(t, change.IsDataInconsistency(err))
	assert.Zero(t, q.Len())
}

func TestCreateJob_SameStartAndEnd_Error(t *testing.T) {
	s, _, _, _ := setup(t)
	_, err := s.CreateJob(context.Background(), request("HEAD", "main"))
	require.Error(t, err)
}

func TestCreateJob_MissingCommits_Error(t *testing.T) {
	s, _, _, _ := setup(t)
	_, err := s.CreateJob(context.Background(), Request{})
	require.Error(t, err)
}

func TestCancelJob_MarksCancelledAndQueues(t *testing.T) {
	ctx := context.Background()
	s, _, _, q := setup(t)
	id, err := s.CreateJob(ctx, request(testutils.Hash(0), "HEAD"))
	require.NoError(t, err)
	l, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Ack(ctx))

	j, err := s.CancelJob(ctx, id)
	require.NoError(t, err)
	assert.True(t, j.Cancelled)
	assert.Equal(t, int64(2), j.Version)
	assert.Equal(t, 1, q.Len())
}

func TestCancelJob_FinishedJob_Unchanged(t *testing.T) {
	ctx := context.Background()
	s, _, store, _ := setup(t)
	id, err := s.CreateJob(ctx, request(testutils.Hash(0), "HEAD"))
	require.NoError(t, err)
	_, err = jobstore.UpdateWithRetries(ctx, store, id, func(j *job.Job) error {
		j.State = job.Completed
		return nil
	})
	require.NoError(t, err)

	j, err := s.CancelJob(ctx, id)
	require.NoError(t, err)
	assert.False(t, j.Cancelled)
	assert.Equal(t, job.Completed, j.State)
	assert.Equal(t, int64(2), j.Version)
}

func TestCancelJob_Missing_NotFound(t *testing.T) {
	s, _, _, _ := setup(t)
	_, err := s.CancelJob(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, jobstore.IsNotFound(err))
}

func TestListJobs(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := setup(t)
	for i := 0; i < 3; i++ {
		_, err := s.CreateJob(ctx, request(testutils.Hash(i), "HEAD"))
		require.NoError(t, err)
	}
	jobs, err := s.ListJobs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestLoadRequest_YAML(t *testing.T) {
	req, err := LoadRequest("testdata/request.yaml")
	require.NoError(t, err)
	require.Len(t, req.Start.Commits, 1)
	assert.Equal(t, repoURL, req.Start.Commits[0].Repository)
	assert.Equal(t, "HEAD", req.End.Commits[0].Ref)
	assert.Equal(t, 3, req.Options.Levels)
	assert.Equal(t, 20, req.Options.InitialAttempts)
	assert.Equal(t, compare.Functional, req.Options.Comparison.Mode)
	assert.Equal(t, 0.5, req.Options.Comparison.Magnitude)
	assert.Equal(t, "speedometer3", req.Options.Args["benchmark"])
	assert.Equal(t, "4321", req.BugID)
}

func TestLoadRequest_JSON5_CreatesJob(t *testing.T) {
	req, err := LoadRequest("testdata/request.json5")
	require.NoError(t, err)
	assert.Equal(t, 40, req.Options.MaxAttempts)
	assert.Empty(t, req.End.Commits[0].Ref)

	s, repo, _, _ := setup(t)
	id, err := s.CreateJob(context.Background(), *req)
	require.NoError(t, err)
	j, err := s.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, repo.Change(0).Equal(j.Changes[0]))
	assert.True(t, repo.Change(9).Equal(j.Changes[1]))
	assert.Equal(t, 40, j.Options.MaxAttempts)
}

func TestLoadRequest_MissingFile_Error(t *testing.T) {
	_, err := LoadRequest("testdata/nope.yaml")
	require.Error(t, err)
}
