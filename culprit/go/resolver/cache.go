package resolver

import (
	"context"

	lru "github.com/hashicorp/golang-lru"

	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/go/metrics2"
	"go.skia.org/culprit/go/skerr"
)

// DefaultCacheSize is the number of entries kept by NewCached when given a
// non-positive size.
const DefaultCacheSize = 10000

// Cached wraps a change.Resolver and remembers commit ranges and commit
// metadata, which never change for a given pair of hashes. Refs can move, so
// ResolveRef is never cached.
type Cached struct {
	change.Resolver

	ranges *lru.Cache
	infos  *lru.Cache

	hits   metrics2.Counter
	misses metrics2.Counter
}

// NewCached returns a Cached in front of r.
func NewCached(r change.Resolver, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	ranges, err := lru.New(size)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	infos, err := lru.New(size)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return &Cached{
		Resolver: r,
		ranges:   ranges,
		infos:    infos,
		hits:     metrics2.GetCounter("culprit_resolver_cache", map[string]string{"result": "hit"}),
		misses:   metrics2.GetCounter("culprit_resolver_cache", map[string]string{"result": "miss"}),
	}, nil
}

type rangeKey struct {
	repository, from, to string
}

// CommitRange implements change.Resolver.
func (c *Cached) CommitRange(ctx context.Context, repository, from, to string) ([]string, error) {
	key := rangeKey{repository: repository, from: from, to: to}
	if v, ok := c.ranges.Get(key); ok {
		c.hits.Inc(1)
		return append([]string{}, v.([]string)...), nil
	}
	c.misses.Inc(1)
	hashes, err := c.Resolver.CommitRange(ctx, repository, from, to)
	if err != nil {
		return nil, err
	}
	c.ranges.Add(key, append([]string{}, hashes...))
	return hashes, nil
}

// CommitInfo implements change.Resolver.
func (c *Cached) CommitInfo(ctx context.Context, repository, hash string) (*change.CommitInfo, error) {
	key := change.Commit{Repository: repository, GitHash: hash}
	if v, ok := c.infos.Get(key); ok {
		c.hits.Inc(1)
		info := *v.(*change.CommitInfo)
		return &info, nil
	}
	c.misses.Inc(1)
	info, err := c.Resolver.CommitInfo(ctx, repository, hash)
	if err != nil {
		return nil, err
	}
	stored := *info
	c.infos.Add(key, &stored)
	return info, nil
}

var _ change.Resolver = (*Cached)(nil)
