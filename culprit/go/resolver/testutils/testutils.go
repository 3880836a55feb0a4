// Package testutils provides an in-memory repository with linear history for
// tests.
package testutils

import (
	"context"
	"crypto/sha1"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/go/skerr"
)

// LinearRepo is a change.Resolver over a single branch of n commits.
type LinearRepo struct {
	URL    string
	hashes []string
	index  map[string]int

	mutex      sync.Mutex
	rangeCalls int
}

// NewLinearRepo returns a repo whose commits are numbered 0 to n-1, oldest
// first.
func NewLinearRepo(url string, n int) *LinearRepo {
	r := &LinearRepo{
		URL:   url,
		index: map[string]int{},
	}
	for i := 0; i < n; i++ {
		h := Hash(i)
		r.hashes = append(r.hashes, h)
		r.index[h] = i
	}
	return r
}

// Hash returns the hash of commit i.
func Hash(i int) string {
	return fmt.Sprintf("%x", sha1.Sum([]byte(fmt.Sprintf("commit %d", i))))
}

// Commit returns commit i.
func (r *LinearRepo) Commit(i int) change.Commit {
	return change.Commit{Repository: r.URL, GitHash: r.hashes[i]}
}

// Change returns a Change holding only commit i.
func (r *LinearRepo) Change(i int) *change.Change {
	return &change.Change{Commits: []change.Commit{r.Commit(i)}}
}

// IndexOf returns the position of hash, or -1.
func (r *LinearRepo) IndexOf(hash string) int {
	if i, ok := r.index[hash]; ok {
		return i
	}
	return -1
}

// RangeCalls returns how many times CommitRange was called.
func (r *LinearRepo) RangeCalls() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.rangeCalls
}

// ResolveRef implements change.Resolver. HEAD and "main" resolve to the
// newest commit; any unique hash prefix resolves to its commit.
func (r *LinearRepo) ResolveRef(_ context.Context, repository, ref string) (string, error) {
	if repository != r.URL {
		return "", skerr.Wrapf(change.ErrNotFound, "unknown repository %s", repository)
	}
	if ref == "HEAD" || ref == "main" {
		return r.hashes[len(r.hashes)-1], nil
	}
	match := ""
	for _, h := range r.hashes {
		if strings.HasPrefix(h, ref) {
			if match != "" {
				return "", skerr.Fmt("ref %s is ambiguous", ref)
			}
			match = h
		}
	}
	if match == "" {
		return "", skerr.Wrapf(change.ErrNotFound, "ref %s", ref)
	}
	return match, nil
}

// CommitRange implements change.Resolver.
func (r *LinearRepo) CommitRange(_ context.Context, repository, from, to string) ([]string, error) {
	r.mutex.Lock()
	r.rangeCalls++
	r.mutex.Unlock()
	if repository != r.URL {
		return nil, skerr.Wrapf(change.ErrNotFound, "unknown repository %s", repository)
	}
	a, ok := r.index[from]
	if !ok {
		return nil, skerr.Wrapf(change.ErrNotFound, "commit %s", from)
	}
	b, ok := r.index[to]
	if !ok {
		return nil, skerr.Wrapf(change.ErrNotFound, "commit %s", to)
	}
	if b <= a {
		return []string{}, nil
	}
	return append([]string{}, r.hashes[a+1:b+1]...), nil
}

// CommitInfo implements change.Resolver.
func (r *LinearRepo) CommitInfo(_ context.Context, repository, hash string) (*change.CommitInfo, error) {
	i, ok := r.index[hash]
	if repository != r.URL || !ok {
		return nil, skerr.Wrapf(change.ErrNotFound, "commit %s", hash)
	}
	return &change.CommitInfo{
		Commit:      change.Commit{Repository: repository, GitHash: hash},
		Author:      fmt.Sprintf("author%d", i),
		AuthorEmail: fmt.Sprintf("author%d@example.com", i),
		Subject:     fmt.Sprintf("Commit number %d", i),
		Message:     fmt.Sprintf("Commit number %d\n\nChange-Id: I%d", i, i),
		Timestamp:   time.Date(2024, time.January, 1, 0, i, 0, 0, time.UTC),
		URL:         fmt.Sprintf("%s/+/%s", repository, hash),
	}, nil
}

var _ change.Resolver = (*LinearRepo)(nil)
