// Package builders builds objects from config.InstanceConfig objects.
//
// These are functions separate from config.InstanceConfig so that we don't end
// up with cyclical import issues.
package builders

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"go.skia.org/culprit/culprit/go/attempt"
	"go.skia.org/culprit/culprit/go/bugreporter"
	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/culprit/go/config"
	"go.skia.org/culprit/culprit/go/jobstore"
	storememory "go.skia.org/culprit/culprit/go/jobstore/memory"
	"go.skia.org/culprit/culprit/go/jobstore/sqljobstore"
	"go.skia.org/culprit/culprit/go/queue"
	queuememory "go.skia.org/culprit/culprit/go/queue/memory"
	"go.skia.org/culprit/culprit/go/queue/redisqueue"
	"go.skia.org/culprit/culprit/go/resolver"
	"go.skia.org/culprit/go/httputils"
	"go.skia.org/culprit/go/skerr"
	"go.skia.org/culprit/go/sklog"
	"go.skia.org/culprit/go/sql/pool/wrapper/timeout"
)

// pgxLogAdaptor allows bubbling pgx logs up into our application.
type pgxLogAdaptor struct{}

// Log a message at the given level with data key/value pairs. data may be nil.
func (pgxLogAdaptor) Log(ctx context.Context, level pgx.LogLevel, msg string, data map[string]interface{}) {
	switch level {
	case pgx.LogLevelWarn:
		sklog.Warningf("pgx - %s %v", msg, data)
	case pgx.LogLevelError:
		sklog.Errorf("pgx - %s %v", msg, data)
	}
}

// maxPoolConnections is the MaxConns our pgxPool will maintain.
const maxPoolConnections = 50

// defaultQueuePrefix is used when the config doesn't name one.
const defaultQueuePrefix = "culprit"

func newCockroachDBFromConfig(ctx context.Context, instanceConfig *config.InstanceConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(instanceConfig.Store.ConnectionString)
	if err != nil {
		return nil, skerr.Wrapf(err, "Failed to parse database config: %q", instanceConfig.Store.ConnectionString)
	}
	cfg.MaxConns = maxPoolConnections
	cfg.ConnConfig.Logger = pgxLogAdaptor{}
	db, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, skerr.Wrapf(err, "connecting to database")
	}
	return db, nil
}

// NewStoreFromConfig creates a new jobstore.Store from the InstanceConfig.
func NewStoreFromConfig(ctx context.Context, instanceConfig *config.InstanceConfig) (jobstore.Store, error) {
	switch instanceConfig.Store.Type {
	case config.MemoryStoreType:
		return storememory.New(), nil
	case config.CockroachDBStoreType:
		db, err := newCockroachDBFromConfig(ctx, instanceConfig)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		if instanceConfig.Store.CreateSchema {
			if _, err := db.Exec(ctx, sqljobstore.Schema); err != nil {
				db.Close()
				return nil, skerr.Wrapf(err, "creating schema")
			}
		}
		return sqljobstore.New(timeout.New(db)), nil
	}
	return nil, skerr.Fmt("Unknown store type: %q", instanceConfig.Store.Type)
}

// NewQueueFromConfig creates a new queue.Queue from the InstanceConfig.
func NewQueueFromConfig(ctx context.Context, instanceConfig *config.InstanceConfig) (queue.Queue, error) {
	switch instanceConfig.Queue.Type {
	case config.MemoryQueueType:
		return queuememory.New(), nil
	case config.RedisQueueType:
		rdb := redis.NewClient(&redis.Options{
			Addr: instanceConfig.Queue.Address,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, skerr.Wrapf(err, "connecting to redis at %s", instanceConfig.Queue.Address)
		}
		prefix := instanceConfig.Queue.Prefix
		if prefix == "" {
			prefix = defaultQueuePrefix
		}
		return redisqueue.New(rdb, prefix, instanceConfig.Queue.LeaseDuration.Duration), nil
	}
	return nil, skerr.Fmt("Unknown queue type: %q", instanceConfig.Queue.Type)
}

// NewResolverFromConfig creates a new change.Resolver from the
// InstanceConfig, wrapped in a cache unless the cache is disabled.
func NewResolverFromConfig(instanceConfig *config.InstanceConfig) (change.Resolver, error) {
	var r change.Resolver
	switch instanceConfig.Resolver.Type {
	case config.GitilesResolverType:
		r = resolver.NewGitiles(gitilesClientConfig(instanceConfig.Resolver).Client())
	case config.GitResolverType:
		r = resolver.NewGit(instanceConfig.Resolver.Checkouts)
	default:
		return nil, skerr.Fmt("Unknown resolver type: %q", instanceConfig.Resolver.Type)
	}
	size := instanceConfig.Resolver.CacheSize
	if size < 0 {
		return r, nil
	}
	cached, err := resolver.NewCached(r, size)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return cached, nil
}

// gitilesClientConfig applies ResolverConfig.RetryFor to the default HTTP
// client.
func gitilesClientConfig(rc config.ResolverConfig) httputils.ClientConfig {
	cfg := httputils.DefaultClientConfig()
	retryFor := rc.RetryFor.Duration
	switch {
	case retryFor < 0:
		return cfg.WithoutRetries()
	case retryFor > 0:
		b := httputils.DefaultBackOffConfig()
		b.MaxElapsedTime = retryFor
		if retryFor > cfg.RequestTimeout {
			cfg.RequestTimeout = retryFor
		}
		return cfg.WithRetries(b)
	}
	return cfg
}

// NewRunnerFromConfig creates a new attempt.Runner from the InstanceConfig.
func NewRunnerFromConfig(instanceConfig *config.InstanceConfig) (attempt.Runner, error) {
	if instanceConfig.Runner.Command == "" {
		return nil, skerr.Fmt("A runner command must be supplied.")
	}
	rc := instanceConfig.Runner
	return attempt.NewCommandRunner(rc.Command, rc.Args, rc.Timeout.Duration), nil
}

// NewNotifierFromConfig creates a new bugreporter.Notifier from the
// InstanceConfig.
func NewNotifierFromConfig(instanceConfig *config.InstanceConfig) (*bugreporter.Notifier, error) {
	var r bugreporter.Reporter
	switch instanceConfig.Reporter.Type {
	case config.NoopReporterType:
		r = bugreporter.NewNoopReporter()
	case config.MonorailReporterType:
		r = bugreporter.NewMonorailReporter(nil, instanceConfig.Reporter.URL, instanceConfig.Reporter.Project)
	default:
		return nil, skerr.Fmt("Unknown reporter type: %q", instanceConfig.Reporter.Type)
	}
	f, err := bugreporter.NewFormatter(instanceConfig.Reporter.JobURLTemplate)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return bugreporter.NewNotifier(f, r), nil
}
