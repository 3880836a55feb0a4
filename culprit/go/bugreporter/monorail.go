package bugreporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.skia.org/culprit/go/httputils"
	"go.skia.org/culprit/go/metrics2"
	"go.skia.org/culprit/go/skerr"
)

const (
	// MonorailBaseURL is the issue tracker API used when none is configured.
	MonorailBaseURL = "https://monorail-prod.appspot.com/_ah/api/monorail/v1"
)

type monorailPerson struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func person(email string) *monorailPerson {
	return &monorailPerson{Name: email, Kind: "monorail#issuePerson"}
}

type monorailUpdates struct {
	Status string            `json:"status,omitempty"`
	Owner  *monorailPerson   `json:"owner,omitempty"`
	CC     []*monorailPerson `json:"cc,omitempty"`
	Labels []string          `json:"labels,omitempty"`
}

type monorailComment struct {
	Content string           `json:"content"`
	Updates *monorailUpdates `json:"updates,omitempty"`
}

// MonorailReporter implements Reporter using the Monorail comments API.
type MonorailReporter struct {
	client  *http.Client
	baseURL string
	project string

	postSuccess metrics2.Counter
	postFailure metrics2.Counter
}

// NewMonorailReporter returns a MonorailReporter for the given project. If
// client is nil the default client is used, without retries since a retried
// POST can leave the same comment twice.
func NewMonorailReporter(client *http.Client, baseURL, project string) *MonorailReporter {
	if client == nil {
		client = httputils.DefaultClientConfig().WithoutRetries().With2xxOnly().Client()
	}
	if baseURL == "" {
		baseURL = MonorailBaseURL
	}
	return &MonorailReporter{
		client:      client,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		project:     project,
		postSuccess: metrics2.GetCounter("culprit_bug_comments", map[string]string{"result": "success"}),
		postFailure: metrics2.GetCounter("culprit_bug_comments", map[string]string{"result": "failure"}),
	}
}

func toMonorail(c *Comment) *monorailComment {
	ret := &monorailComment{Content: c.Text}
	if c.Status == "" && c.Owner == "" && len(c.CC) == 0 && len(c.Labels) == 0 {
		return ret
	}
	u := &monorailUpdates{
		Status: c.Status,
		Labels: c.Labels,
	}
	if c.Owner != "" {
		u.Owner = person(c.Owner)
	}
	for _, cc := range c.CC {
		u.CC = append(u.CC, person(cc))
	}
	ret.Updates = u
	return ret
}

// PostComment implements Reporter.
func (m *MonorailReporter) PostComment(ctx context.Context, bugID string, c *Comment) error {
	if err := m.post(ctx, bugID, c); err != nil {
		m.postFailure.Inc(1)
		return err
	}
	m.postSuccess.Inc(1)
	return nil
}

func (m *MonorailReporter) post(ctx context.Context, bugID string, c *Comment) error {
	b, err := json.Marshal(toMonorail(c))
	if err != nil {
		return skerr.Wrapf(err, "encoding comment")
	}
	u := fmt.Sprintf("%s/projects/%s/issues/%s/comments", m.baseURL, m.project, bugID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return skerr.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.client.Do(req)
	if err != nil {
		return skerr.Wrapf(err, "posting comment to %s", u)
	}
	defer httputils.ReadAndClose(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return skerr.Fmt("posting comment to %s: status %d", u, resp.StatusCode)
	}
	return nil
}

var _ Reporter = (*MonorailReporter)(nil)
