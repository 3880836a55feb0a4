package change

import (
	"context"

	"go.skia.org/culprit/go/skerr"
)

// CommitMidpoint returns the commit halfway between a and b. If a and b are
// adjacent it returns a.
//
// For n commits strictly between a and b the (n+1)/2-th one after a is
// returned, which favours the earlier half when n is even.
func CommitMidpoint(ctx context.Context, r Resolver, a, b Commit) (Commit, error) {
	if a.Repository != b.Repository {
		return Commit{}, skerr.Wrapf(ErrNonLinear, "%s and %s are in different repositories", a, b)
	}
	hashes, err := r.CommitRange(ctx, a.Repository, a.GitHash, b.GitHash)
	if err != nil {
		return Commit{}, skerr.Wrapf(err, "listing commits between %s and %s", a, b)
	}
	if len(hashes) == 0 {
		return Commit{}, skerr.Wrapf(ErrNonLinear, "%s does not come after %s", b, a)
	}
	if hashes[len(hashes)-1] != b.GitHash {
		return Commit{}, skerr.Wrapf(ErrNonLinear, "range %s..%s does not end at %s", a, b, b.GitHash)
	}
	if len(hashes) == 1 {
		return a, nil
	}
	// Drop b.
	between := hashes[:len(hashes)-1]
	return Commit{Repository: a.Repository, GitHash: between[(len(between)-1)/2]}, nil
}

// Midpoint returns the Change halfway between a and b. The two Changes must
// carry the same patch, cover the same repositories, and differ in at most
// one of them. If a and b are adjacent, a is returned.
func Midpoint(ctx context.Context, r Resolver, a, b *Change) (*Change, error) {
	if a.Patch.String() != b.Patch.String() {
		return nil, skerr.Wrapf(ErrNonLinear, "%s and %s have different patches", a, b)
	}
	if len(a.Commits) != len(b.Commits) {
		return nil, skerr.Wrapf(ErrNonLinear, "%s and %s cover different repositories", a, b)
	}
	bHashes := make(map[string]string, len(b.Commits))
	for _, c := range b.Commits {
		bHashes[c.Repository] = c.GitHash
	}
	var from, to *Commit
	for i, c := range a.Commits {
		h, ok := bHashes[c.Repository]
		if !ok {
			return nil, skerr.Wrapf(ErrNonLinear, "%s is not in %s", c.Repository, b)
		}
		if h == c.GitHash {
			continue
		}
		if from != nil {
			return nil, skerr.Wrapf(ErrNonLinear, "%s and %s differ in more than one repository", a, b)
		}
		from = &a.Commits[i]
		to = &Commit{Repository: c.Repository, GitHash: h}
	}
	if from == nil {
		return a, nil
	}
	mid, err := CommitMidpoint(ctx, r, *from, *to)
	if err != nil {
		return nil, err
	}
	if mid == *from {
		return a, nil
	}
	return a.withCommit(mid), nil
}

// DifferingCommit returns the commit in after that differs from before, which
// is the commit to blame when before and after measure differently.
func DifferingCommit(before, after *Change) (Commit, error) {
	prev := make(map[string]string, len(before.Commits))
	for _, c := range before.Commits {
		prev[c.Repository] = c.GitHash
	}
	for _, c := range after.Commits {
		if prev[c.Repository] != c.GitHash {
			return c, nil
		}
	}
	return Commit{}, skerr.Fmt("%s and %s have the same commits", before, after)
}
