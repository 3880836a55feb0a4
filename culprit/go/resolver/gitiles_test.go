package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/culprit/go/resolver/testutils"
)

// fakeGitiles serves a single linear repo of n commits at /repo, two log
// entries per page.
type fakeGitiles struct {
	n        int
	mutex    sync.Mutex
	requests []string
	// parentOverride replaces the parent of a commit, to simulate merges.
	parentOverride map[int]string
}

func (f *fakeGitiles) commitJSON(i int) *gitilesCommit {
	c := &gitilesCommit{
		Commit:    testutils.Hash(i),
		Author:    &gitilesAuthor{Name: "author" + strconv.Itoa(i), Email: fmt.Sprintf("author%d@example.com", i)},
		Committer: &gitilesAuthor{Time: "Mon Jan 02 15:04:05 2023 +0100"},
		Message:   fmt.Sprintf("Commit number %d\n\nBody of %d.\n", i, i),
	}
	if i > 0 {
		c.Parents = []string{testutils.Hash(i - 1)}
	}
	if p, ok := f.parentOverride[i]; ok {
		c.Parents = []string{p}
	}
	return c
}

func (f *fakeGitiles) index(hash string) int {
	for i := 0; i < f.n; i++ {
		if testutils.Hash(i) == hash || (hash == "main" && i == f.n-1) {
			return i
		}
	}
	return -1
}

func (f *fakeGitiles) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mutex.Lock()
	f.requests = append(f.requests, r.URL.RequestURI())
	f.mutex.Unlock()
	if r.URL.Query().Get("format") != "JSON" {
		http.Error(w, "bad format", http.StatusBadRequest)
		return
	}
	var body interface{}
	switch {
	case strings.HasPrefix(r.URL.Path, "/repo/+/"):
		i := f.index(strings.TrimPrefix(r.URL.Path, "/repo/+/"))
		if i < 0 {
			http.NotFound(w, r)
			return
		}
		body = f.commitJSON(i)
	case strings.HasPrefix(r.URL.Path, "/repo/+log/"):
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/repo/+log/"), "..")
		from, to := f.index(parts[0]), f.index(parts[1])
		if from < 0 || to < 0 {
			http.NotFound(w, r)
			return
		}
		start := to
		if s := r.URL.Query().Get("s"); s != "" {
			start = f.index(s)
		}
		l := gitilesLog{Log: []*gitilesCommit{}}
		for i := start; i > from && len(l.Log) < 2; i-- {
			l.Log = append(l.Log, f.commitJSON(i))
		}
		if next := start - 2; next > from {
			l.Next = testutils.Hash(next)
		}
		body = l
	default:
		http.NotFound(w, r)
		return
	}
	b, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(")]}'\n"))
	_, _ = w.Write(b)
}

func setupGitiles(t *testing.T, n int) (*Gitiles, *fakeGitiles, string) {
	f := &fakeGitiles{n: n, parentOverride: map[int]string{}}
	s := httptest.NewServer(f)
	t.Cleanup(s.Close)
	return NewGitiles(s.Client()), f, s.URL + "/repo"
}

func TestGitiles_ResolveRef(t *testing.T) {
	g, _, repo := setupGitiles(t, 5)
	hash, err := g.ResolveRef(context.Background(), repo, "main")
	require.NoError(t, err)
	assert.Equal(t, testutils.Hash(4), hash)
}

func TestGitiles_ResolveRef_Unknown_NotFound(t *testing.T) {
	g, _, repo := setupGitiles(t, 5)
	_, err := g.ResolveRef(context.Background(), repo, "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, change.ErrNotFound)
}

func TestGitiles_CommitRange_PagesAndReturnsOldestFirst(t *testing.T) {
	g, f, repo := setupGitiles(t, 10)
	hashes, err := g.CommitRange(context.Background(), repo, testutils.Hash(2), testutils.Hash(7))
	require.NoError(t, err)
	assert.Equal(t, []string{
		testutils.Hash(3), testutils.Hash(4), testutils.Hash(5), testutils.Hash(6), testutils.Hash(7),
	}, hashes)
	f.mutex.Lock()
	defer f.mutex.Unlock()
	require.Len(t, f.requests, 3)
	assert.Contains(t, f.requests[1], "&s="+testutils.Hash(5))
}

func TestGitiles_CommitRange_ToBeforeFrom_Empty(t *testing.T) {
	g, _, repo := setupGitiles(t, 10)
	hashes, err := g.CommitRange(context.Background(), repo, testutils.Hash(7), testutils.Hash(2))
	require.NoError(t, err)
	assert.Empty(t, hashes)
}

func TestGitiles_CommitRange_NotDescendedFromFrom_Empty(t *testing.T) {
	g, f, repo := setupGitiles(t, 10)
	f.parentOverride[3] = "someotherbranch"
	hashes, err := g.CommitRange(context.Background(), repo, testutils.Hash(2), testutils.Hash(4))
	require.NoError(t, err)
	assert.Empty(t, hashes)
}

func TestGitiles_CommitRange_WorksWithMidpoint(t *testing.T) {
	g, _, repo := setupGitiles(t, 11)
	a := change.Commit{Repository: repo, GitHash: testutils.Hash(0)}
	b := change.Commit{Repository: repo, GitHash: testutils.Hash(10)}
	m, err := change.CommitMidpoint(context.Background(), g, a, b)
	require.NoError(t, err)
	assert.Equal(t, testutils.Hash(5), m.GitHash)
}

func TestGitiles_CommitInfo(t *testing.T) {
	g, _, repo := setupGitiles(t, 5)
	info, err := g.CommitInfo(context.Background(), repo, testutils.Hash(3))
	require.NoError(t, err)
	assert.Equal(t, "author3", info.Author)
	assert.Equal(t, "author3@example.com", info.AuthorEmail)
	assert.Equal(t, "Commit number 3", info.Subject)
	assert.Equal(t, repo+"/+/"+testutils.Hash(3), info.URL)
	assert.Equal(t, change.Commit{Repository: repo, GitHash: testutils.Hash(3)}, info.Commit)
	assert.True(t, time.Date(2023, time.January, 2, 14, 4, 5, 0, time.UTC).Equal(info.Timestamp))
}

func TestGitiles_ServerError_ReturnsError(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer s.Close()
	g := NewGitiles(s.Client())
	_, err := g.ResolveRef(context.Background(), s.URL+"/repo", "main")
	require.Error(t, err)
	assert.NotErrorIs(t, err, change.ErrNotFound)
	assert.Contains(t, err.Error(), "403")
}
