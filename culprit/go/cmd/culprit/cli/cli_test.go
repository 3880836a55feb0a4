package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	attempttestutils "go.skia.org/culprit/culprit/go/attempt/testutils"
	"go.skia.org/culprit/culprit/go/bugreporter"
	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/culprit/go/config"
	"go.skia.org/culprit/culprit/go/job"
	storememory "go.skia.org/culprit/culprit/go/jobstore/memory"
	queuememory "go.skia.org/culprit/culprit/go/queue/memory"
	"go.skia.org/culprit/culprit/go/resolver/testutils"
	"go.skia.org/culprit/culprit/go/service"
)

const repoURL = "https://example.googlesource.com/repo"

func newApp(t *testing.T, culprit int) (*App, *bytes.Buffer) {
	repo := testutils.NewLinearRepo(repoURL, 20)
	runner := attempttestutils.NewFakeRunner(func(c *change.Change, try int) ([]float64, error) {
		if repo.IndexOf(c.Base().GitHash) >= culprit {
			return attempttestutils.Spread(20, 5), nil
		}
		return attempttestutils.Spread(10, 5), nil
	})
	formatter, err := bugreporter.NewFormatter("")
	require.NoError(t, err)
	store := storememory.New()
	q := queuememory.New()
	defaults := job.Options{InitialAttempts: 4, Comparison: job.DefaultOptions.Comparison}
	defaults.Comparison.Magnitude = 10
	var out bytes.Buffer
	return &App{
		Config:   &config.InstanceConfig{},
		Store:    store,
		Queue:    q,
		Deps:     job.Deps{Resolver: repo, Runner: runner},
		Notifier: bugreporter.NewNotifier(formatter, bugreporter.NewNoopReporter()),
		Service:  service.New(store, q, repo, defaults),
		Out:      &out,
	}, &out
}

func request() service.Request {
	return service.Request{
		Start: change.Request{Commits: []change.CommitRequest{{Repository: repoURL, Ref: testutils.Hash(0)}}},
		End:   change.Request{Commits: []change.CommitRequest{{Repository: repoURL, Ref: "HEAD"}}},
	}
}

func TestCommands_Names(t *testing.T) {
	var names []string
	for _, c := range Commands() {
		names = append(names, c.Name)
		assert.NotNil(t, c.Action, c.Name)
	}
	assert.Equal(t, []string{"worker", "run", "create", "show", "list", "cancel"}, names)
}

func TestRun_FindsCulprit(t *testing.T) {
	a, out := newApp(t, 13)
	require.NoError(t, a.Run(context.Background(), request()))

	s := out.String()
	require.True(t, strings.HasPrefix(s, "Created job "))
	var j job.Job
	require.NoError(t, json.Unmarshal([]byte(s[strings.Index(s, "\n")+1:]), &j))
	assert.Equal(t, job.Completed, j.State)
	require.Len(t, j.Differences, 1)
	assert.Equal(t, testutils.Hash(13), j.Differences[0].Commit.GitHash)
}

func TestCreateShowListCancel(t *testing.T) {
	ctx := context.Background()
	a, out := newApp(t, 13)

	require.NoError(t, a.Create(ctx, request()))
	id := strings.TrimSpace(out.String())
	require.NotEmpty(t, id)

	out.Reset()
	require.NoError(t, a.Show(ctx, id))
	var j job.Job
	require.NoError(t, json.Unmarshal(out.Bytes(), &j))
	assert.Equal(t, id, j.ID)
	assert.Equal(t, job.Created, j.State)

	out.Reset()
	require.NoError(t, a.List(ctx, 10))
	assert.Contains(t, out.String(), id+"\t")
	assert.Contains(t, out.String(), "\tcreated\tticks=0\tdifferences=0")

	out.Reset()
	require.NoError(t, a.Cancel(ctx, id))
	assert.Equal(t, id+"\tcreated\tcancelled=true\n", out.String())
}

func TestShow_NoID_Error(t *testing.T) {
	a, _ := newApp(t, 13)
	require.Error(t, a.Show(context.Background(), ""))
	require.Error(t, a.Cancel(context.Background(), ""))
}

func TestShow_Missing_Error(t *testing.T) {
	a, _ := newApp(t, 13)
	require.Error(t, a.Show(context.Background(), "nope"))
}
