package bugreporter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/culprit/go/job"
	"go.skia.org/culprit/culprit/go/resolver/testutils"
)

const repoURL = "https://example.googlesource.com/repo"

func newJob(t *testing.T) (*job.Job, *testutils.LinearRepo) {
	repo := testutils.NewLinearRepo(repoURL, 10)
	j, err := job.New(context.Background(), "job-1", []*change.Change{repo.Change(0), repo.Change(9)}, job.Options{}, "1234")
	require.NoError(t, err)
	return j, repo
}

func difference(t *testing.T, repo *testutils.LinearRepo, i int) *job.Difference {
	info, err := repo.CommitInfo(context.Background(), repoURL, testutils.Hash(i))
	require.NoError(t, err)
	return &job.Difference{
		Index:   1,
		Before:  repo.Change(i - 1),
		After:   repo.Change(i),
		Commit:  repo.Commit(i),
		Culprit: info,
		PValue:  0.0012,
	}
}

func TestFormat_Started(t *testing.T) {
	j, repo := newJob(t)
	f, err := NewFormatter("https://culprit.example.com/j/{id}")
	require.NoError(t, err)

	c, err := f.Format(j, job.NotifyStarted)
	require.NoError(t, err)
	assert.Contains(t, c.Text, "Culprit finder job started.")
	assert.Contains(t, c.Text, "https://culprit.example.com/j/job-1")
	assert.Contains(t, c.Text, repo.Change(0).String())
	assert.Contains(t, c.Text, repo.Change(9).String())
	assert.Empty(t, c.Labels)
	assert.Empty(t, c.Owner)
	assert.Empty(t, c.Status)
}

func TestFormat_CompletedWithCulprits_AssignsToAuthors(t *testing.T) {
	j, repo := newJob(t)
	j.State = job.Completed
	j.Differences = []*job.Difference{
		difference(t, repo, 4),
		difference(t, repo, 7),
		difference(t, repo, 4),
	}
	f, err := NewFormatter("")
	require.NoError(t, err)

	c, err := f.Format(j, job.NotifyCompleted)
	require.NoError(t, err)
	assert.Contains(t, c.Text, "Found 3 significant differences:")
	assert.Contains(t, c.Text, "Commit number 4")
	assert.Contains(t, c.Text, "By author7 <author7@example.com> on 2024-01-01")
	assert.Contains(t, c.Text, repoURL+"/+/"+testutils.Hash(7))
	assert.Contains(t, c.Text, "p-value 0.0012")
	assert.NotContains(t, c.Text, "Details:")
	assert.Equal(t, []string{LabelFound}, c.Labels)
	assert.Equal(t, StatusAssigned, c.Status)
	assert.Equal(t, "author4@example.com", c.Owner)
	assert.Equal(t, []string{"author4@example.com", "author7@example.com"}, c.CC)
}

func TestFormat_CompletedCulpritWithoutInfo_ShowsCommit(t *testing.T) {
	j, repo := newJob(t)
	d := difference(t, repo, 4)
	d.Culprit = nil
	j.Differences = []*job.Difference{d}
	f, err := NewFormatter("")
	require.NoError(t, err)

	c, err := f.Format(j, job.NotifyCompleted)
	require.NoError(t, err)
	assert.Contains(t, c.Text, "Found 1 significant difference:")
	assert.Contains(t, c.Text, repo.Commit(4).String())
	assert.Empty(t, c.Owner)
	assert.Empty(t, c.CC)
	assert.Empty(t, c.Status)
}

func TestFormat_CompletedWithGap_ReportsRangeAndAssignsNobody(t *testing.T) {
	j, repo := newJob(t)
	j.Differences = []*job.Difference{{
		Index:  1,
		Before: repo.Change(2),
		After:  repo.Change(8),
		PValue: 0.001,
		Gap:    true,
		// Left over from an older snapshot; must not be blamed.
		Culprit: &change.CommitInfo{Subject: "Commit number 8", AuthorEmail: "author8@example.com"},
	}}
	f, err := NewFormatter("")
	require.NoError(t, err)

	c, err := f.Format(j, job.NotifyCompleted)
	require.NoError(t, err)
	assert.Contains(t, c.Text, "Found 1 significant difference:")
	assert.Contains(t, c.Text, "Somewhere after "+repo.Change(2).String()+" up to "+repo.Change(8).String())
	assert.Contains(t, c.Text, "could not be measured")
	assert.NotContains(t, c.Text, "Commit number 8")
	assert.Equal(t, []string{LabelFound}, c.Labels)
	assert.Empty(t, c.Owner)
	assert.Empty(t, c.CC)
	assert.Empty(t, c.Status)
}

func TestFormat_GapAndCulprit_OnlyCulpritAuthorAssigned(t *testing.T) {
	j, repo := newJob(t)
	j.Differences = []*job.Difference{
		{Index: 1, Before: repo.Change(0), After: repo.Change(3), Gap: true},
		difference(t, repo, 7),
	}
	f, err := NewFormatter("")
	require.NoError(t, err)

	c, err := f.Format(j, job.NotifyCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, c.Status)
	assert.Equal(t, "author7@example.com", c.Owner)
	assert.Equal(t, []string{"author7@example.com"}, c.CC)
}

func TestFormat_CompletedWithoutDifferences(t *testing.T) {
	j, _ := newJob(t)
	f, err := NewFormatter("https://culprit.example.com/j/{id}")
	require.NoError(t, err)

	c, err := f.Format(j, job.NotifyCompleted)
	require.NoError(t, err)
	assert.Contains(t, c.Text, "Could not reproduce a difference between")
	assert.Contains(t, c.Text, "Details: https://culprit.example.com/j/job-1")
	assert.Equal(t, []string{LabelNotFound}, c.Labels)
	assert.Empty(t, c.Status)
}

func TestFormat_Failed(t *testing.T) {
	j, _ := newJob(t)
	j.FailureReason = "commit range is not linear"
	f, err := NewFormatter("")
	require.NoError(t, err)

	c, err := f.Format(j, job.NotifyFailed)
	require.NoError(t, err)
	assert.Contains(t, c.Text, "Culprit finder job failed: commit range is not linear")
	assert.Equal(t, []string{LabelFailed}, c.Labels)
}

func TestFormat_UnknownNotification_Error(t *testing.T) {
	j, _ := newJob(t)
	f, err := NewFormatter("")
	require.NoError(t, err)
	_, err = f.Format(j, job.Notification("bogus"))
	require.Error(t, err)
}
