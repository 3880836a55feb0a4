// Package change describes the code under test during a bisection: a set of
// commits, one per repository, plus an optional patch applied on top.
package change

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.skia.org/culprit/go/skerr"
)

var (
	// ErrNonLinear is returned when two changes can't be placed on a single
	// line of history, e.g. they are in different repositories or the later
	// one does not descend from the earlier one.
	ErrNonLinear = errors.New("changes are not linear")

	// ErrNotFound is returned when a ref or commit can't be resolved.
	ErrNotFound = errors.New("commit not found")
)

// IsDataInconsistency returns true if err means the revision graph disagrees
// with the request. Retrying won't help.
func IsDataInconsistency(err error) bool {
	return errors.Is(err, ErrNonLinear) || errors.Is(err, ErrNotFound)
}

// Commit is a single revision in a single repository.
type Commit struct {
	// Repository is the url of the repository, ie/ https://chromium.googlesource.com/chromium/src
	Repository string `json:"repository" yaml:"repository"`

	// GitHash is the full SHA1 of the revision.
	GitHash string `json:"git_hash" yaml:"git_hash"`
}

func (c Commit) String() string {
	h := c.GitHash
	if len(h) > 8 {
		h = h[:8]
	}
	return fmt.Sprintf("%s@%s", c.Repository, h)
}

// Patch is a code review change applied on top of the commits.
type Patch struct {
	Server   string `json:"server" yaml:"server"`
	Change   string `json:"change" yaml:"change"`
	Revision string `json:"revision" yaml:"revision"`
}

func (p *Patch) String() string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%s/c/%s/%s", p.Server, p.Change, p.Revision)
}

// CommitInfo is the metadata used to describe a culprit.
type CommitInfo struct {
	Commit      Commit    `json:"commit"`
	Author      string    `json:"author"`
	AuthorEmail string    `json:"author_email"`
	Subject     string    `json:"subject"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	URL         string    `json:"url"`
}

// Resolver talks to the repository hosting service.
type Resolver interface {
	// ResolveRef turns a symbolic ref, such as HEAD, a branch name or an
	// abbreviated hash, into a full git hash. Returns an error wrapping
	// ErrNotFound if the ref does not exist.
	ResolveRef(ctx context.Context, repository, ref string) (string, error)

	// CommitRange returns the hashes after from, up to and including to,
	// oldest first. An empty list means to does not come after from.
	CommitRange(ctx context.Context, repository, from, to string) ([]string, error)

	// CommitInfo returns the metadata of a single commit.
	CommitInfo(ctx context.Context, repository, hash string) (*CommitInfo, error)
}

// Change is the exact code under test. Commits holds one base commit per
// repository. The first commit is the one bisected over; the others are
// pinned dependencies.
//
// Change contains a slice so it is not comparable with ==; use Key() for map
// keys and Equal() for comparison.
type Change struct {
	Commits []Commit `json:"commits"`
	Patch   *Patch   `json:"patch,omitempty"`
}

// New returns a Change for the given commits. Exact duplicates are dropped;
// two different hashes for the same repository is an error.
func New(patch *Patch, commits ...Commit) (*Change, error) {
	if len(commits) == 0 {
		return nil, skerr.Fmt("a change needs at least one commit")
	}
	seen := map[string]string{}
	ret := &Change{Patch: patch}
	for _, c := range commits {
		if c.Repository == "" || c.GitHash == "" {
			return nil, skerr.Fmt("commit %v is missing a repository or hash", c)
		}
		if h, ok := seen[c.Repository]; ok {
			if h != c.GitHash {
				return nil, skerr.Fmt("repository %s appears twice with different hashes %s and %s", c.Repository, h, c.GitHash)
			}
			continue
		}
		seen[c.Repository] = c.GitHash
		ret.Commits = append(ret.Commits, c)
	}
	return ret, nil
}

// Base returns the commit being bisected over.
func (c *Change) Base() Commit {
	return c.Commits[0]
}

// Key is a canonical string for the Change. Two Changes have the same Key iff
// they are Equal, regardless of the order their commits were listed in.
func (c *Change) Key() string {
	parts := make([]string, 0, len(c.Commits))
	for _, commit := range c.Commits {
		parts = append(parts, commit.Repository+"@"+commit.GitHash)
	}
	sort.Strings(parts)
	key := strings.Join(parts, ",")
	if c.Patch != nil {
		key += "+" + c.Patch.String()
	}
	return key
}

// Equal returns true if both Changes build the same code.
func (c *Change) Equal(o *Change) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.Key() == o.Key()
}

func (c *Change) String() string {
	parts := make([]string, 0, len(c.Commits))
	for _, commit := range c.Commits {
		parts = append(parts, commit.String())
	}
	s := strings.Join(parts, " ")
	if c.Patch != nil {
		s += " + " + c.Patch.String()
	}
	return s
}

// withCommit returns a copy of c with the commit for commit.Repository
// replaced.
func (c *Change) withCommit(commit Commit) *Change {
	ret := &Change{
		Commits: make([]Commit, len(c.Commits)),
		Patch:   c.Patch,
	}
	for i, old := range c.Commits {
		if old.Repository == commit.Repository {
			ret.Commits[i] = commit
		} else {
			ret.Commits[i] = old
		}
	}
	return ret
}

// CommitRequest names a revision by any ref the repository understands.
type CommitRequest struct {
	Repository string `json:"repository" yaml:"repository"`
	Ref        string `json:"ref" yaml:"ref"`
}

// Request is the unresolved form of a Change, as supplied by a user.
type Request struct {
	Commits []CommitRequest `json:"commits" yaml:"commits"`
	Patch   *Patch          `json:"patch,omitempty" yaml:"patch,omitempty"`
}

// FromRequest resolves every ref in req and returns the resulting Change.
func FromRequest(ctx context.Context, r Resolver, req Request) (*Change, error) {
	commits := make([]Commit, 0, len(req.Commits))
	for _, cr := range req.Commits {
		ref := cr.Ref
		if ref == "" {
			ref = "HEAD"
		}
		hash, err := r.ResolveRef(ctx, cr.Repository, ref)
		if err != nil {
			return nil, skerr.Wrapf(err, "resolving %s in %s", ref, cr.Repository)
		}
		commits = append(commits, Commit{Repository: cr.Repository, GitHash: hash})
	}
	return New(req.Patch, commits...)
}
