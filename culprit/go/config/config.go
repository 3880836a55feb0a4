// Package config is the configuration of a culprit finder instance.
package config

import (
	"go.skia.org/culprit/culprit/go/job"
	"go.skia.org/culprit/go/config"
	"go.skia.org/culprit/go/skerr"
)

// StoreType is where Jobs are kept.
type StoreType string

const (
	// MemoryStoreType keeps Jobs in memory, for local testing.
	MemoryStoreType StoreType = "memory"

	// CockroachDBStoreType keeps Jobs in CockroachDB.
	CockroachDBStoreType StoreType = "cockroachdb"
)

// QueueType is how Job IDs reach the workers.
type QueueType string

const (
	// MemoryQueueType only works when the workers run in the same process.
	MemoryQueueType QueueType = "memory"

	// RedisQueueType can be shared by many worker processes.
	RedisQueueType QueueType = "redis"
)

// ResolverType is how commits are looked up.
type ResolverType string

const (
	// GitilesResolverType talks to a Gitiles server over HTTP.
	GitilesResolverType ResolverType = "gitiles"

	// GitResolverType runs git on local checkouts.
	GitResolverType ResolverType = "git"
)

// ReporterType is where Job notifications go.
type ReporterType string

const (
	// NoopReporterType only logs the notifications.
	NoopReporterType ReporterType = "noop"

	// MonorailReporterType comments on Monorail issues.
	MonorailReporterType ReporterType = "monorail"
)

// StoreConfig configures the jobstore.Store.
type StoreConfig struct {
	Type StoreType `json:"type"`

	// ConnectionString is required for CockroachDBStoreType, e.g.
	// "postgresql://root@localhost:26257/culprit?sslmode=disable".
	ConnectionString string `json:"connection_string,omitempty" optional:"true"`

	// CreateSchema creates the tables if they don't already exist.
	CreateSchema bool `json:"create_schema,omitempty"`
}

// QueueConfig configures the queue.Queue.
type QueueConfig struct {
	Type QueueType `json:"type"`

	// Address of the Redis server, e.g. "localhost:6379".
	Address string `json:"address,omitempty" optional:"true"`

	// Prefix of all the Redis keys used by the queue.
	Prefix string `json:"prefix,omitempty" optional:"true"`

	// LeaseDuration is how long a worker may hold a Job before it is handed
	// to another worker.
	LeaseDuration config.Duration `json:"lease_duration,omitempty" optional:"true"`
}

// ResolverConfig configures the change.Resolver.
type ResolverConfig struct {
	Type ResolverType `json:"type"`

	// Checkouts maps repository URLs to local checkouts, for GitResolverType.
	Checkouts map[string]string `json:"checkouts,omitempty" optional:"true"`

	// CacheSize is the number of commit ranges and commit details kept in
	// memory. Zero means the default, negative disables the cache.
	CacheSize int `json:"cache_size,omitempty" optional:"true"`

	// RetryFor is how long a Gitiles request that fails or gets a server
	// error is retried. Zero means five minutes, negative disables retries.
	RetryFor config.Duration `json:"retry_for,omitempty" optional:"true"`
}

// RunnerConfig configures the attempt.Runner, which runs a command for every
// Attempt.
type RunnerConfig struct {
	// Command is run with Args for each Attempt. The Change and Job
	// arguments are passed in the environment.
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty" optional:"true"`

	// Timeout of a single run.
	Timeout config.Duration `json:"timeout,omitempty" optional:"true"`
}

// ReporterConfig configures the bugreporter.Reporter.
type ReporterConfig struct {
	Type ReporterType `json:"type"`

	// URL is the base of the Monorail API. Defaults to the production
	// instance.
	URL string `json:"url,omitempty" optional:"true"`

	// Project is the Monorail project the bugs live in.
	Project string `json:"project,omitempty" optional:"true"`

	// JobURLTemplate links comments to a page about the Job. "{id}" is
	// replaced with the Job ID.
	JobURLTemplate string `json:"job_url_template,omitempty" optional:"true"`
}

// WorkerConfig configures the worker loop.
type WorkerConfig struct {
	// Parallelism is the number of Jobs ticked at once. Defaults to 1.
	Parallelism int `json:"parallelism,omitempty" optional:"true"`

	// TicksPerSecond limits the rate of ticks across all Jobs. Zero means no
	// limit.
	TicksPerSecond float64 `json:"ticks_per_second,omitempty" optional:"true"`
}

// InstanceConfig is the configuration of a culprit finder instance.
type InstanceConfig struct {
	Store    StoreConfig    `json:"store"`
	Queue    QueueConfig    `json:"queue"`
	Resolver ResolverConfig `json:"resolver"`
	Runner   RunnerConfig   `json:"runner"`
	Reporter ReporterConfig `json:"reporter"`
	Worker   WorkerConfig   `json:"worker,omitempty" optional:"true"`

	// JobDefaults fill in any Options a request leaves out.
	JobDefaults job.Options `json:"job_defaults,omitempty" optional:"true"`
}

// Load reads an InstanceConfig from the given JSON5 files, later files
// overriding earlier ones, and validates it.
func Load(paths ...string) (*InstanceConfig, error) {
	var ret InstanceConfig
	if err := config.LoadFromJSON5(&ret, paths...); err != nil {
		return nil, skerr.Wrap(err)
	}
	if err := ret.Validate(); err != nil {
		return nil, skerr.Wrap(err)
	}
	return &ret, nil
}

// Validate returns an error if the backends are misconfigured.
func (c *InstanceConfig) Validate() error {
	switch c.Store.Type {
	case MemoryStoreType:
	case CockroachDBStoreType:
		if c.Store.ConnectionString == "" {
			return skerr.Fmt("store: a connection_string is required for %q", c.Store.Type)
		}
	default:
		return skerr.Fmt("store: unknown type %q", c.Store.Type)
	}

	switch c.Queue.Type {
	case MemoryQueueType:
	case RedisQueueType:
		if c.Queue.Address == "" {
			return skerr.Fmt("queue: an address is required for %q", c.Queue.Type)
		}
	default:
		return skerr.Fmt("queue: unknown type %q", c.Queue.Type)
	}

	switch c.Resolver.Type {
	case GitilesResolverType:
	case GitResolverType:
		if len(c.Resolver.Checkouts) == 0 {
			return skerr.Fmt("resolver: checkouts are required for %q", c.Resolver.Type)
		}
	default:
		return skerr.Fmt("resolver: unknown type %q", c.Resolver.Type)
	}

	switch c.Reporter.Type {
	case NoopReporterType:
	case MonorailReporterType:
		if c.Reporter.Project == "" {
			return skerr.Fmt("reporter: a project is required for %q", c.Reporter.Type)
		}
	default:
		return skerr.Fmt("reporter: unknown type %q", c.Reporter.Type)
	}

	if c.Worker.Parallelism < 0 {
		return skerr.Fmt("worker: parallelism must not be negative, got %d", c.Worker.Parallelism)
	}
	if c.Worker.TicksPerSecond < 0 {
		return skerr.Fmt("worker: ticks_per_second must not be negative, got %g", c.Worker.TicksPerSecond)
	}
	return nil
}
