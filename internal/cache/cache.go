// Package cache is a best-effort read/write-through layer over the shared KV
// store. Store failures are logged and degrade to a miss; nothing may depend
// on this package for correctness.
package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wzuhqa/flashstock/internal/cache/codec"
	"github.com/wzuhqa/flashstock/internal/port"
	"github.com/wzuhqa/flashstock/pkg/metrics"
)

type Cache struct {
	store port.KVStore
	codec codec.Codec
	log   *zap.Logger
}

type Option func(*Cache)

// WithCodec overrides the default JSON codec.
func WithCodec(c codec.Codec) Option {
	return func(cc *Cache) { cc.codec = c }
}

func New(store port.KVStore, log *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		store: store,
		codec: codec.JSON(),
		log:   log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get loads the payload at key into dst. A store error counts as a miss.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	payload, ok, err := c.store.Get(ctx, key)
	if err != nil {
		metrics.CacheOps.WithLabelValues("error").Inc()
		c.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		metrics.CacheOps.WithLabelValues("miss").Inc()
		return false
	}
	if err := c.codec.Unmarshal([]byte(payload), dst); err != nil {
		metrics.CacheOps.WithLabelValues("error").Inc()
		c.log.Warn("cache payload corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	metrics.CacheOps.WithLabelValues("hit").Inc()
	return true
}

// Set stores value under key. ttl <= 0 means no expiry. Failures are logged
// and swallowed.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	payload, err := c.codec.Marshal(value)
	if err != nil {
		metrics.CacheOps.WithLabelValues("error").Inc()
		c.log.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, string(payload), ttl); err != nil {
		metrics.CacheOps.WithLabelValues("error").Inc()
		c.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return
	}
	metrics.CacheOps.WithLabelValues("set").Inc()
}

// Invalidate removes keys. Failures are logged and swallowed; the entries
// age out at their TTL anyway.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if err := c.store.Del(ctx, keys...); err != nil {
		c.log.Warn("cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
		return
	}
	metrics.CacheOps.WithLabelValues("invalidate").Inc()
}

// InvalidatePattern removes every key matching a glob pattern. O(n) over the
// keyspace; fine at this scale, replace with a tag index before it isn't.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) {
	keys, err := c.store.Keys(ctx, pattern)
	if err != nil {
		c.log.Warn("cache pattern scan failed", zap.String("pattern", pattern), zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	c.Invalidate(ctx, keys...)
}

// GetOrSet returns the cached value at key, computing and caching it on a
// miss. If the cache layer fails in any way the computed value is returned
// uncached, so callers stay correct with the store down.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var cached T
	if c.Get(ctx, key, &cached) {
		return cached, nil
	}

	computed, err := compute(ctx)
	if err != nil {
		return computed, err
	}
	c.Set(ctx, key, computed, ttl)
	return computed, nil
}
