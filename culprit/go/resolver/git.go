package resolver

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/go/exec"
	"go.skia.org/culprit/go/skerr"
)

// gitTimeout bounds every git invocation.
const gitTimeout = time.Minute

// Git resolves commits in local checkouts, one per repository.
type Git struct {
	// checkouts maps a repository URL to the directory it is checked out in.
	checkouts map[string]string
}

// NewGit returns a Git resolver for the given checkouts, keyed by repository
// URL.
func NewGit(checkouts map[string]string) *Git {
	return &Git{checkouts: checkouts}
}

func (g *Git) git(ctx context.Context, repository string, args ...string) (string, error) {
	dir, ok := g.checkouts[repository]
	if !ok {
		return "", skerr.Wrapf(change.ErrNotFound, "no checkout for %s", repository)
	}
	var stdout, stderr bytes.Buffer
	err := exec.Run(ctx, &exec.Command{
		Name:    "git",
		Args:    args,
		Dir:     dir,
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: gitTimeout,
	})
	if err != nil {
		return "", skerr.Wrapf(err, "git %s: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// isUnknownRevision returns true if git exited because it could not find an
// object. git uses exit code 128 for that, and for most other fatal errors;
// rev-parse --verify also exits 1 on a bad ref.
func isUnknownRevision(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && (exitErr.Code == 1 || exitErr.Code == 128)
}

// ResolveRef implements change.Resolver.
func (g *Git) ResolveRef(ctx context.Context, repository, ref string) (string, error) {
	out, err := g.git(ctx, repository, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		if isUnknownRevision(err) {
			return "", skerr.Wrapf(change.ErrNotFound, "%s in %s", ref, repository)
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CommitRange implements change.Resolver.
func (g *Git) CommitRange(ctx context.Context, repository, from, to string) ([]string, error) {
	out, err := g.git(ctx, repository, "rev-list", "--reverse", "--first-parent", "--ancestry-path", from+".."+to)
	if err != nil {
		if isUnknownRevision(err) {
			return nil, skerr.Wrapf(change.ErrNotFound, "%s..%s in %s", from, to, repository)
		}
		return nil, err
	}
	ret := []string{}
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			ret = append(ret, line)
		}
	}
	return ret, nil
}

// commitInfoFormat puts one field per line, with the message last since it
// may span several lines.
const commitInfoFormat = "--format=format:%H%n%an%n%ae%n%ct%n%B"

// CommitInfo implements change.Resolver.
func (g *Git) CommitInfo(ctx context.Context, repository, hash string) (*change.CommitInfo, error) {
	out, err := g.git(ctx, repository, "log", "-n", "1", commitInfoFormat, hash)
	if err != nil {
		if isUnknownRevision(err) {
			return nil, skerr.Wrapf(change.ErrNotFound, "%s in %s", hash, repository)
		}
		return nil, err
	}
	lines := strings.SplitN(out, "\n", 5)
	if len(lines) != 5 {
		return nil, skerr.Fmt("Failed to parse output of 'git log': %q", out)
	}
	ts, err := strconv.ParseInt(lines[3], 10, 64)
	if err != nil {
		return nil, skerr.Wrapf(err, "parsing commit time %q", lines[3])
	}
	message := strings.TrimRight(lines[4], "\n")
	return &change.CommitInfo{
		Commit:      change.Commit{Repository: repository, GitHash: lines[0]},
		Author:      lines[1],
		AuthorEmail: lines[2],
		Subject:     strings.SplitN(message, "\n", 2)[0],
		Message:     message,
		Timestamp:   time.Unix(ts, 0).UTC(),
		URL:         repository + "/+/" + lines[0],
	}, nil
}

var _ change.Resolver = (*Git)(nil)
