package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/culprit/go/change/mocks"
	"go.skia.org/culprit/culprit/go/resolver/testutils"
)

func TestCached_CommitRange_SecondCallHitsCache(t *testing.T) {
	repo := testutils.NewLinearRepo(gitRepo, 10)
	c, err := NewCached(repo, 0)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := c.CommitRange(ctx, gitRepo, testutils.Hash(1), testutils.Hash(5))
	require.NoError(t, err)
	// Callers may modify what they get back.
	first[0] = "modified"
	second, err := c.CommitRange(ctx, gitRepo, testutils.Hash(1), testutils.Hash(5))
	require.NoError(t, err)

	assert.Equal(t, 1, repo.RangeCalls())
	assert.Equal(t, []string{testutils.Hash(2), testutils.Hash(3), testutils.Hash(4), testutils.Hash(5)}, second)
}

func TestCached_CommitInfo_SecondCallHitsCache(t *testing.T) {
	r := mocks.NewResolver(t)
	info := &change.CommitInfo{Subject: "Fix"}
	r.On("CommitInfo", mock.Anything, gitRepo, "abc").Return(info, nil).Once()
	c, err := NewCached(r, 10)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := c.CommitInfo(context.Background(), gitRepo, "abc")
		require.NoError(t, err)
		assert.Equal(t, "Fix", got.Subject)
	}
}

func TestCached_Errors_NotCached(t *testing.T) {
	r := mocks.NewResolver(t)
	r.On("CommitRange", mock.Anything, gitRepo, "a", "b").Return(nil, errors.New("unavailable")).Once()
	r.On("CommitRange", mock.Anything, gitRepo, "a", "b").Return([]string{"b"}, nil).Once()
	c, err := NewCached(r, 10)
	require.NoError(t, err)

	_, err = c.CommitRange(context.Background(), gitRepo, "a", "b")
	require.Error(t, err)
	hashes, err := c.CommitRange(context.Background(), gitRepo, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, hashes)
}

func TestCached_ResolveRef_NotCached(t *testing.T) {
	r := mocks.NewResolver(t)
	r.On("ResolveRef", mock.Anything, gitRepo, "main").Return("h1", nil).Once()
	r.On("ResolveRef", mock.Anything, gitRepo, "main").Return("h2", nil).Once()
	c, err := NewCached(r, 10)
	require.NoError(t, err)

	h, err := c.ResolveRef(context.Background(), gitRepo, "main")
	require.NoError(t, err)
	assert.Equal(t, "h1", h)
	h, err = c.ResolveRef(context.Background(), gitRepo, "main")
	require.NoError(t, err)
	assert.Equal(t, "h2", h)
}
