// Package resolver implements change.Resolver against Gitiles, a local git
// checkout, and an in-memory cache in front of either.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/go/httputils"
	"go.skia.org/culprit/go/skerr"
)

const (
	commitURL = "%s/+/%s?format=JSON"
	logURL    = "%s/+log/%s..%s?format=JSON&n=%d"

	dateFormatNoTZ = "Mon Jan 02 15:04:05 2006"
	dateFormatTZ   = "Mon Jan 02 15:04:05 2006 -0700"

	// logPageSize is the number of commits requested per page of a log.
	logPageSize = 1000

	// maxLogPages bounds how far back CommitRange will page.
	maxLogPages = 100
)

// Gitiles prefixes JSON responses with this to prevent XSSI.
var xssiPrefix = []byte(")]}'")

type gitilesAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Time  string `json:"time"`
}

type gitilesCommit struct {
	Commit    string         `json:"commit"`
	Parents   []string       `json:"parents"`
	Author    *gitilesAuthor `json:"author"`
	Committer *gitilesAuthor `json:"committer"`
	Message   string         `json:"message"`
}

type gitilesLog struct {
	Log  []*gitilesCommit `json:"log"`
	Next string           `json:"next"`
}

// Gitiles talks to repositories hosted on a Gitiles server. Repository names
// are the full URLs of the repos, e.g.
// https://chromium.googlesource.com/chromium/src.
type Gitiles struct {
	client *http.Client
}

// NewGitiles returns a Gitiles resolver. If c is nil a client that retries
// server errors is used.
func NewGitiles(c *http.Client) *Gitiles {
	if c == nil {
		c = httputils.DefaultClientConfig().Client()
	}
	return &Gitiles{client: c}
}

// get fetches u and decodes the JSON response into dst.
func (g *Gitiles) get(ctx context.Context, u string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return skerr.Wrap(err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return skerr.Wrapf(err, "requesting %s", u)
	}
	if resp.StatusCode == http.StatusNotFound {
		httputils.ReadAndClose(resp.Body)
		return skerr.Wrapf(change.ErrNotFound, "%s", u)
	}
	if resp.StatusCode != http.StatusOK {
		return skerr.Fmt("Request to %s got status %q: %s", u, resp.Status, httputils.ReadAndClose(resp.Body))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return skerr.Wrapf(err, "Failed to read response from %s", u)
	}
	b = bytes.TrimPrefix(b, xssiPrefix)
	if err := json.Unmarshal(b, dst); err != nil {
		return skerr.Wrapf(err, "Failed to decode response from %s", u)
	}
	return nil
}

func (g *Gitiles) getCommit(ctx context.Context, repository, ref string) (*gitilesCommit, error) {
	var c gitilesCommit
	if err := g.get(ctx, fmt.Sprintf(commitURL, strings.TrimSuffix(repository, "/"), url.PathEscape(ref)), &c); err != nil {
		return nil, err
	}
	if c.Commit == "" {
		return nil, skerr.Wrapf(change.ErrNotFound, "no commit for %s in %s", ref, repository)
	}
	return &c, nil
}

// ResolveRef implements change.Resolver.
func (g *Gitiles) ResolveRef(ctx context.Context, repository, ref string) (string, error) {
	c, err := g.getCommit(ctx, repository, ref)
	if err != nil {
		return "", err
	}
	return c.Commit, nil
}

// CommitRange implements change.Resolver. Gitiles lists a log newest first,
// a page at a time; the result is returned oldest first.
func (g *Gitiles) CommitRange(ctx context.Context, repository, from, to string) ([]string, error) {
	base := fmt.Sprintf(logURL, strings.TrimSuffix(repository, "/"), from, to, logPageSize)
	var commits []*gitilesCommit
	next := ""
	for page := 0; ; page++ {
		if page >= maxLogPages {
			return nil, skerr.Fmt("more than %d commits between %s and %s in %s", maxLogPages*logPageSize, from, to, repository)
		}
		u := base
		if next != "" {
			u += "&s=" + url.QueryEscape(next)
		}
		var l gitilesLog
		if err := g.get(ctx, u, &l); err != nil {
			return nil, err
		}
		commits = append(commits, l.Log...)
		if l.Next == "" {
			break
		}
		next = l.Next
	}
	if len(commits) == 0 {
		return []string{}, nil
	}
	// from..to also lists commits on side branches merged after from. Only
	// a straight line from from to to can be bisected.
	oldest := commits[len(commits)-1]
	if !contains(oldest.Parents, from) {
		return []string{}, nil
	}
	ret := make([]string, 0, len(commits))
	for i := len(commits) - 1; i >= 0; i-- {
		ret = append(ret, commits[i].Commit)
	}
	return ret, nil
}

// CommitInfo implements change.Resolver.
func (g *Gitiles) CommitInfo(ctx context.Context, repository, hash string) (*change.CommitInfo, error) {
	c, err := g.getCommit(ctx, repository, hash)
	if err != nil {
		return nil, err
	}
	ret := &change.CommitInfo{
		Commit:  change.Commit{Repository: repository, GitHash: c.Commit},
		Message: c.Message,
		Subject: strings.SplitN(c.Message, "\n", 2)[0],
		URL:     fmt.Sprintf("%s/+/%s", strings.TrimSuffix(repository, "/"), c.Commit),
	}
	if c.Author != nil {
		ret.Author = c.Author.Name
		ret.AuthorEmail = c.Author.Email
	}
	if c.Committer != nil {
		ts, err := parseTime(c.Committer.Time)
		if err != nil {
			return nil, skerr.Wrapf(err, "commit %s", c.Commit)
		}
		ret.Timestamp = ts
	}
	return ret, nil
}

func parseTime(s string) (time.Time, error) {
	if strings.Contains(s, " +") || strings.Contains(s, " -") {
		return time.Parse(dateFormatTZ, s)
	}
	return time.Parse(dateFormatNoTZ, s)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var _ change.Resolver = (*Gitiles)(nil)
