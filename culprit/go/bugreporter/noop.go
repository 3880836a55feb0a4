package bugreporter

import (
	"context"

	"go.skia.org/culprit/go/sklog"
)

// NoopReporter implements Reporter by logging the comments.
type NoopReporter struct{}

// NewNoopReporter returns a new NoopReporter.
func NewNoopReporter() *NoopReporter {
	return &NoopReporter{}
}

// PostComment implements Reporter.
func (NoopReporter) PostComment(ctx context.Context, bugID string, c *Comment) error {
	sklog.Infof("Bug %s: %s", bugID, c.Text)
	return nil
}

var _ Reporter = NoopReporter{}
