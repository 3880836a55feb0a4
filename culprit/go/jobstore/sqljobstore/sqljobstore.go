// Package sqljobstore implements jobstore.Store on CockroachDB. Each Job is
// stored as a single JSONB snapshot next to the columns used for lookups.
package sqljobstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"go.skia.org/culprit/culprit/go/job"
	"go.skia.org/culprit/culprit/go/jobstore"
	"go.skia.org/culprit/go/ctxutil"
	"go.skia.org/culprit/go/skerr"
	"go.skia.org/culprit/go/sql/pool"
)

// Schema creates the table used by Store.
const Schema = `
	CREATE TABLE IF NOT EXISTS Jobs (
		id STRING PRIMARY KEY,
		version INT NOT NULL,
		state STRING NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		snapshot JSONB NOT NULL,
		INDEX by_created_at (created_at DESC)
	);`

// Statements are bounded by this timeout.
const statementTimeout = 30 * time.Second

// uniqueViolation is the SQLSTATE for a duplicate primary key.
const uniqueViolation = "23505"

// statement is an SQL statement identifier.
type statement int

const (
	// The identifiers for all the SQL statements used.
	insertJob statement = iota
	loadJob
	saveJob
	jobVersion
	listJobs
)

// statements holds all the raw SQL statements.
var statements = map[statement]string{
	insertJob: `
		INSERT INTO
			Jobs (id, version, state, created_at, updated_at, snapshot)
		VALUES
			($1, $2, $3, $4, now(), $5)
		`,
	loadJob: `
		SELECT
			snapshot
		FROM
			Jobs
		WHERE
			id=$1
		`,
	saveJob: `
		UPDATE
			Jobs
		SET
			version=$3, state=$4, updated_at=now(), snapshot=$5
		WHERE
			id=$1 AND version=$2
		`,
	jobVersion: `
		SELECT
			version
		FROM
			Jobs
		WHERE
			id=$1
		`,
	listJobs: `
		SELECT
			snapshot
		FROM
			Jobs
		ORDER BY
			created_at DESC, id
		LIMIT
			$1
		`,
}

// Store implements jobstore.Store.
type Store struct {
	db pool.Pool
}

// New returns a new *Store.
//
// Schema must already have been applied to db.
func New(db pool.Pool) *Store {
	return &Store{db: db}
}

func encode(j *job.Job) (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", skerr.Wrapf(err, "encoding job %s", j.ID)
	}
	return string(b), nil
}

func decode(encoded string) (*job.Job, error) {
	var j job.Job
	if err := json.Unmarshal([]byte(encoded), &j); err != nil {
		return nil, skerr.Wrapf(err, "decoding job")
	}
	return &j, nil
}

// Create implements jobstore.Store.
func (s *Store) Create(ctx context.Context, j *job.Job) error {
	return ctxutil.WithContextTimeout(ctx, statementTimeout, func(ctx context.Context) error {
		prev := j.Version
		j.Version = 1
		encoded, err := encode(j)
		if err != nil {
			j.Version = prev
			return err
		}
		if _, err := s.db.Exec(ctx, statements[insertJob], j.ID, j.Version, string(j.State), j.CreatedAt, encoded); err != nil {
			j.Version = prev
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return skerr.Wrapf(jobstore.ErrAlreadyExists, "job %s", j.ID)
			}
			return skerr.Wrapf(err, "inserting job %s", j.ID)
		}
		return nil
	})
}

// Load implements jobstore.Store.
func (s *Store) Load(ctx context.Context, id string) (*job.Job, error) {
	var ret *job.Job
	err := ctxutil.WithContextTimeout(ctx, statementTimeout, func(ctx context.Context) error {
		var encoded string
		if err := s.db.QueryRow(ctx, statements[loadJob], id).Scan(&encoded); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return skerr.Wrapf(jobstore.ErrNotFound, "job %s", id)
			}
			return skerr.Wrapf(err, "loading job %s", id)
		}
		var err error
		ret, err = decode(encoded)
		return err
	})
	return ret, err
}

// Save implements jobstore.Store.
func (s *Store) Save(ctx context.Context, j *job.Job, expectedVersion int64) error {
	return ctxutil.WithContextTimeout(ctx, statementTimeout, func(ctx context.Context) error {
		prev := j.Version
		j.Version = expectedVersion + 1
		encoded, err := encode(j)
		if err != nil {
			j.Version = prev
			return err
		}
		tag, err := s.db.Exec(ctx, statements[saveJob], j.ID, expectedVersion, j.Version, string(j.State), encoded)
		if err != nil {
			j.Version = prev
			return skerr.Wrapf(err, "saving job %s", j.ID)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
		j.Version = prev
		var current int64
		if err := s.db.QueryRow(ctx, statements[jobVersion], j.ID).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return skerr.Wrapf(jobstore.ErrNotFound, "job %s", j.ID)
			}
			return skerr.Wrapf(err, "reading version of job %s", j.ID)
		}
		return skerr.Wrapf(jobstore.ErrConcurrentUpdate, "job %s is at version %d, not %d", j.ID, current, expectedVersion)
	})
}

// List implements jobstore.Store.
func (s *Store) List(ctx context.Context, limit int) ([]*job.Job, error) {
	if limit <= 0 {
		limit = 1000
	}
	var ret []*job.Job
	err := ctxutil.WithContextTimeout(ctx, statementTimeout, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, statements[listJobs], limit)
		if err != nil {
			return skerr.Wrapf(err, "listing jobs")
		}
		defer rows.Close()
		for rows.Next() {
			var encoded string
			if err := rows.Scan(&encoded); err != nil {
				return skerr.Wrap(err)
			}
			j, err := decode(encoded)
			if err != nil {
				return err
			}
			ret = append(ret, j)
		}
		return skerr.Wrap(rows.Err())
	})
	return ret, err
}

var _ jobstore.Store = (*Store)(nil)
