// Package memory implements jobstore.Store in memory, for tests and for
// running a single process without a database.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.skia.org/culprit/culprit/go/job"
	"go.skia.org/culprit/culprit/go/jobstore"
	"go.skia.org/culprit/go/skerr"
)

type entry struct {
	version int64
	// snapshot is the JSON encoded Job, so that callers never share memory
	// with the store.
	snapshot  []byte
	id        string
	createdAt time.Time
}

// Store implements jobstore.Store.
type Store struct {
	mutex sync.RWMutex
	jobs  map[string]*entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		jobs: map[string]*entry{},
	}
}

func decode(e *entry) (*job.Job, error) {
	var j job.Job
	if err := json.Unmarshal(e.snapshot, &j); err != nil {
		return nil, skerr.Wrap(err)
	}
	return &j, nil
}

func (s *Store) put(j *job.Job, version int64) error {
	j.Version = version
	b, err := json.Marshal(j)
	if err != nil {
		return skerr.Wrapf(err, "encoding job %s", j.ID)
	}
	s.jobs[j.ID] = &entry{version: version, snapshot: b, id: j.ID, createdAt: j.CreatedAt}
	return nil
}

// Create implements jobstore.Store.
func (s *Store) Create(ctx context.Context, j *job.Job) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.jobs[j.ID]; ok {
		return skerr.Wrapf(jobstore.ErrAlreadyExists, "job %s", j.ID)
	}
	return s.put(j, 1)
}

// Load implements jobstore.Store.
func (s *Store) Load(ctx context.Context, id string) (*job.Job, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	e, ok := s.jobs[id]
	if !ok {
		return nil, skerr.Wrapf(jobstore.ErrNotFound, "job %s", id)
	}
	return decode(e)
}

// Save implements jobstore.Store.
func (s *Store) Save(ctx context.Context, j *job.Job, expectedVersion int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	e, ok := s.jobs[j.ID]
	if !ok {
		return skerr.Wrapf(jobstore.ErrNotFound, "job %s", j.ID)
	}
	if e.version != expectedVersion {
		return skerr.Wrapf(jobstore.ErrConcurrentUpdate, "job %s is at version %d, not %d", j.ID, e.version, expectedVersion)
	}
	return s.put(j, expectedVersion+1)
}

// List implements jobstore.Store.
func (s *Store) List(ctx context.Context, limit int) ([]*job.Job, error) {
	s.mutex.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mutex.RUnlock()

	sort.Slice(entries, func(i, k int) bool {
		a, b := entries[i], entries[k]
		if a.createdAt.Equal(b.createdAt) {
			return a.id < b.id
		}
		return a.createdAt.After(b.createdAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	ret := make([]*job.Job, 0, len(entries))
	for _, e := range entries {
		j, err := decode(e)
		if err != nil {
			return nil, err
		}
		ret = append(ret, j)
	}
	return ret, nil
}

var _ jobstore.Store = (*Store)(nil)
