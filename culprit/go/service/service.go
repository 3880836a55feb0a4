// Package service is the API for creating and managing culprit finding Jobs.
package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/culprit/go/job"
	"go.skia.org/culprit/culprit/go/jobstore"
	"go.skia.org/culprit/culprit/go/queue"
	"go.skia.org/culprit/go/config"
	"go.skia.org/culprit/go/skerr"
	"go.skia.org/culprit/go/sklog"
)

// Request asks for a culprit search between two Changes.
type Request struct {
	Start   change.Request `json:"start" yaml:"start"`
	End     change.Request `json:"end" yaml:"end"`
	Options job.Options    `json:"options" yaml:"options"`
	BugID   string         `json:"bug_id,omitempty" yaml:"bug_id,omitempty"`
}

// LoadRequest reads a Request from a YAML file, if the name ends in .yaml or
// .yml, or a JSON5 file otherwise.
func LoadRequest(path string) (*Request, error) {
	var req Request
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		if err := yaml.Unmarshal(b, &req); err != nil {
			return nil, skerr.Wrapf(err, "parsing %s", path)
		}
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		defer f.Close()
		if err := config.DecodeJSON5(f, &req); err != nil {
			return nil, skerr.Wrapf(err, "parsing %s", path)
		}
	}
	return &req, nil
}

// Service creates, cancels and reports on Jobs.
type Service struct {
	store    jobstore.Store
	queue    queue.Queue
	resolver change.Resolver
	defaults job.Options
}

// New returns a new Service. Zero fields in the Options of a Request are
// filled from defaults.
func New(store jobstore.Store, q queue.Queue, resolver change.Resolver, defaults job.Options) *Service {
	return &Service{
		store:    store,
		queue:    q,
		resolver: resolver,
		defaults: defaults,
	}
}

// CreateJob resolves the Changes in req, stores a new Job and queues its
// first tick. Returns the ID of the new Job.
func (s *Service) CreateJob(ctx context.Context, req Request) (string, error) {
	if len(req.Start.Commits) == 0 || len(req.End.Commits) == 0 {
		return "", skerr.Fmt("both start and end need at least one commit")
	}
	start, err := change.FromRequest(ctx, s.resolver, req.Start)
	if err != nil {
		return "", skerr.Wrapf(err, "resolving start")
	}
	end, err := change.FromRequest(ctx, s.resolver, req.End)
	if err != nil {
		return "", skerr.Wrapf(err, "resolving end")
	}
	if start.Base().Repository != end.Base().Repository {
		return "", skerr.Fmt("start and end are in different repositories: %s and %s", start.Base().Repository, end.Base().Repository)
	}

	id := uuid.New().String()
	j, err := job.New(ctx, id, []*change.Change{start, end}, req.Options.WithDefaultsFrom(s.defaults), req.BugID)
	if err != nil {
		return "", skerr.Wrap(err)
	}
	if err := s.store.Create(ctx, j); err != nil {
		return "", skerr.Wrapf(err, "storing job")
	}
	if err := s.queue.Enqueue(ctx, id); err != nil {
		return "", skerr.Wrapf(err, "queueing job %s", id)
	}
	sklog.Infof("Created job %s from %s to %s.", id, start, end)
	return id, nil
}

// CancelJob marks the Job as cancelled. The Job fails on its next tick.
// Cancelling a finished Job does nothing.
func (s *Service) CancelJob(ctx context.Context, id string) (*job.Job, error) {
	j, err := jobstore.UpdateWithRetries(ctx, s.store, id, func(j *job.Job) error {
		if j.State.IsTerminal() || j.Cancelled {
			return errNoChange
		}
		j.Cancelled = true
		return nil
	})
	if errors.Is(err, errNoChange) {
		return s.store.Load(ctx, id)
	}
	if err != nil {
		return nil, skerr.Wrapf(err, "cancelling job %s", id)
	}
	// Tick right away so the Job does not wait behind its attempts.
	if err := s.queue.Enqueue(ctx, id); err != nil {
		return nil, skerr.Wrapf(err, "queueing job %s", id)
	}
	sklog.Infof("Cancelled job %s.", id)
	return j, nil
}

// errNoChange stops UpdateWithRetries without saving.
var errNoChange = errors.New("no change")

// GetJob returns the Job with the given ID.
func (s *Service) GetJob(ctx context.Context, id string) (*job.Job, error) {
	j, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, skerr.Wrapf(err, "loading job %s", id)
	}
	return j, nil
}

// ListJobs returns up to limit Jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, limit int) ([]*job.Job, error) {
	jobs, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return jobs, nil
}
