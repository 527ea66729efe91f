package storage

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/maypok86/otter"
	"github.com/ruteri/mos-registry-driver/interfaces"
	"github.com/ruteri/mos-registry-driver/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCacheCapacity is the default number of content entries kept in memory.
	DefaultCacheCapacity = 1024

	// DefaultSizeCacheTTL bounds how long a size answered by the object store is reused.
	DefaultSizeCacheTTL = time.Minute

	sizeCacheCapacity = 16384

	contentCacheLabel = "content"
	sizeCacheLabel    = "size"
)

// Resolver maps logical paths to object keys. BlobStore implements it.
type Resolver interface {
	Resolve(path string) string
}

// CacheOptions configures a CacheLayer.
type CacheOptions struct {
	// Capacity is the maximum number of content entries. Must be positive.
	Capacity int

	// SizeTTL is the lifetime of cached sizes; zero disables the size cache.
	SizeTTL time.Duration

	Metrics *metrics.CacheMetrics
}

// CacheLayer wraps a StorageDriver with a write-through LRU content cache.
// Reads are answered from the cache when possible; writes and removals reach
// the wrapped driver first and only touch the cache once it succeeded.
type CacheLayer struct {
	next     interfaces.StorageDriver
	resolver Resolver
	content  *lruCache
	sizes    *otter.Cache[string, int64]
	loads    singleflight.Group
	metrics  *metrics.CacheMetrics
	log      *slog.Logger
}

// NewCacheLayer wraps next. Cache entries are keyed by resolver's object keys
// so that different spellings of a path share an entry.
func NewCacheLayer(next interfaces.StorageDriver, resolver Resolver, opts CacheOptions, log *slog.Logger) (*CacheLayer, error) {
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("%w: cache capacity must be positive, got %d", interfaces.ErrInvalidConfig, opts.Capacity)
	}

	c := &CacheLayer{
		next:     next,
		resolver: resolver,
		metrics:  opts.Metrics,
		log:      log,
	}
	c.content = newLRUCache(opts.Capacity, func(string) {
		if c.metrics != nil {
			c.metrics.Evictions.WithLabelValues(contentCacheLabel).Inc()
		}
	})

	if opts.SizeTTL > 0 {
		sizes, err := otter.MustBuilder[string, int64](sizeCacheCapacity).
			WithTTL(opts.SizeTTL).
			Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build size cache: %w", err)
		}
		c.sizes = &sizes
	}

	return c, nil
}

// GetContent returns cached content for path or loads it from the wrapped
// driver. Concurrent misses for the same key share one backend fetch.
func (c *CacheLayer) GetContent(ctx context.Context, path string) ([]byte, error) {
	key := c.resolver.Resolve(path)

	if data, ok := c.content.get(key); ok {
		c.hit(contentCacheLabel)
		return data, nil
	}
	c.miss(contentCacheLabel)

	// The shared load outlives any single caller: one caller giving up must not
	// fail the others waiting on the same key.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.loads.DoChan(key, func() (interface{}, error) {
		since := c.content.beginLoad()
		data, err := c.next.GetContent(loadCtx, path)
		if err != nil {
			c.content.endLoad()
			return nil, err
		}
		if !c.content.fill(key, data, since) {
			c.log.Debug("Skipped caching content loaded across a write", slog.String("key", key))
		}
		return data, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]byte)), nil
	case <-ctx.Done():
		return nil, &interfaces.ConnectionError{Op: "get", Path: key, Err: ctx.Err()}
	}
}

// PutContent writes through to the wrapped driver and mirrors content in the
// cache once the write is confirmed.
func (c *CacheLayer) PutContent(ctx context.Context, path string, content []byte) (string, error) {
	key := c.resolver.Resolve(path)

	resolved, err := c.next.PutContent(ctx, path, content)
	if err != nil {
		return "", err
	}

	// A load started before this write may still be in flight; drop it so later
	// misses don't join a fetch of the old object.
	c.loads.Forget(key)
	c.content.set(key, content)
	c.dropSize(key)
	return resolved, nil
}

// Remove deletes through the wrapped driver and drops the cached entry,
// whether or not one existed.
func (c *CacheLayer) Remove(ctx context.Context, path string) error {
	key := c.resolver.Resolve(path)

	if err := c.next.Remove(ctx, path); err != nil {
		return err
	}

	c.loads.Forget(key)
	c.dropContent(key)
	c.dropSize(key)
	return nil
}

// Exists answers true for cached content and otherwise asks the wrapped driver.
func (c *CacheLayer) Exists(ctx context.Context, path string) bool {
	if c.content.contains(c.resolver.Resolve(path)) {
		c.hit(contentCacheLabel)
		return true
	}
	return c.next.Exists(ctx, path)
}

// GetSize answers from cached content, then from the size cache, then from
// the wrapped driver.
func (c *CacheLayer) GetSize(ctx context.Context, path string) (int64, error) {
	key := c.resolver.Resolve(path)

	if size, ok := c.content.size(key); ok {
		c.hit(contentCacheLabel)
		return size, nil
	}

	if c.sizes != nil {
		if size, ok := c.sizes.Get(key); ok {
			c.hit(sizeCacheLabel)
			return size, nil
		}
		c.miss(sizeCacheLabel)
	}

	if c.sizes == nil {
		return c.next.GetSize(ctx, path)
	}

	since := c.content.beginLoad()
	size, err := c.next.GetSize(ctx, path)
	if err != nil {
		c.content.endLoad()
		return 0, err
	}
	c.content.ifUnchanged(key, since, func() {
		c.sizes.Set(key, size)
	})
	return size, nil
}

// ListDirectory is not cached.
func (c *CacheLayer) ListDirectory(ctx context.Context, path string) iter.Seq2[string, error] {
	return c.next.ListDirectory(ctx, path)
}

// StreamRead is not cached.
func (c *CacheLayer) StreamRead(ctx context.Context, path string, byteRange interfaces.ByteRange) (io.ReadCloser, error) {
	return c.next.StreamRead(ctx, path, byteRange)
}

// StreamWrite is not mirrored; on success any cached copy of path is dropped.
func (c *CacheLayer) StreamWrite(ctx context.Context, path string, source io.Reader) (int64, error) {
	key := c.resolver.Resolve(path)

	n, err := c.next.StreamWrite(ctx, path, source)
	if err != nil {
		return 0, err
	}

	c.loads.Forget(key)
	c.dropContent(key)
	c.dropSize(key)
	return n, nil
}

// Len returns the number of cached content entries.
func (c *CacheLayer) Len() int {
	return c.content.count()
}

// Close releases the size cache.
func (c *CacheLayer) Close() {
	if c.sizes != nil {
		c.sizes.Close()
	}
}

func (c *CacheLayer) dropContent(key string) {
	if c.content.invalidate(key) && c.metrics != nil {
		c.metrics.Invalidations.WithLabelValues(contentCacheLabel).Inc()
	}
}

func (c *CacheLayer) dropSize(key string) {
	if c.sizes == nil {
		return
	}
	if _, ok := c.sizes.Get(key); ok && c.metrics != nil {
		c.metrics.Invalidations.WithLabelValues(sizeCacheLabel).Inc()
	}
	c.sizes.Delete(key)
}

func (c *CacheLayer) hit(cache string) {
	if c.metrics != nil {
		c.metrics.Hits.WithLabelValues(cache).Inc()
	}
}

func (c *CacheLayer) miss(cache string) {
	if c.metrics != nil {
		c.metrics.Misses.WithLabelValues(cache).Inc()
	}
}
