// Package bugreporter posts the progress and results of Jobs to their bugs.
package bugreporter

import (
	"context"

	"go.skia.org/culprit/culprit/go/job"
	"go.skia.org/culprit/go/skerr"
	"go.skia.org/culprit/go/sklog"
)

// Comment is a bug comment along with the bug fields to change.
type Comment struct {
	Text string `json:"text"`

	// The fields below are left unchanged on the bug when empty.
	Status string   `json:"status,omitempty"`
	Owner  string   `json:"owner,omitempty"`
	CC     []string `json:"cc,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

// Reporter talks to a bug tracker.
type Reporter interface {
	// PostComment adds c to the bug with the given ID.
	PostComment(ctx context.Context, bugID string, c *Comment) error
}

// Notifier turns Job notifications into bug comments.
type Notifier struct {
	formatter *Formatter
	reporter  Reporter
}

// NewNotifier returns a new Notifier.
func NewNotifier(formatter *Formatter, reporter Reporter) *Notifier {
	return &Notifier{
		formatter: formatter,
		reporter:  reporter,
	}
}

// Notify posts the comment for n to the bug of j. Jobs without a bug are
// skipped.
func (n *Notifier) Notify(ctx context.Context, j *job.Job, notification job.Notification) error {
	if j.BugID == "" {
		sklog.Infof("Job %s has no bug, not posting %s notification.", j.ID, notification)
		return nil
	}
	c, err := n.formatter.Format(j, notification)
	if err != nil {
		return skerr.Wrapf(err, "formatting %s notification for job %s", notification, j.ID)
	}
	if err := n.reporter.PostComment(ctx, j.BugID, c); err != nil {
		return skerr.Wrapf(err, "posting %s notification for job %s to bug %s", notification, j.ID, j.BugID)
	}
	return nil
}
