package cache

import (
	"context"
	"time"
)

// LayeredCache is a two-level cache: L1 in process, L2 shared (normally Redis).
type LayeredCache struct {
	l1    *MemoryCache
	l2    Service
	l1TTL time.Duration
}

// NewLayeredCache wraps a shared cache with an in-memory front.
func NewLayeredCache(shared Service, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		MemoryTTL:     30 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &LayeredCache{
		l1:    NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize), WithMemoryClock(cfg.Clock)),
		l2:    shared,
		l1TTL: cfg.MemoryTTL,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	// write-through: L2 first so L1 never holds a value L2 rejected
	if err := lc.l2.Set(ctx, key, data, expiration); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, data, lc.frontTTL(expiration))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	if err := lc.l1.Get(ctx, key, &data); err == nil {
		return decode(data, dest)
	}

	if err := lc.l2.Get(ctx, key, &data); err != nil {
		return err
	}
	if ttl, ok := lc.promoteTTL(ctx, key); ok {
		_ = lc.l1.Set(ctx, key, data, ttl)
	}
	return decode(data, dest)
}

// promoteTTL caps the L1 lifetime of an L2 hit at what L2 has left. ok=false skips the
// L1 fill when the remaining lifetime cannot be read.
func (lc *LayeredCache) promoteTTL(ctx context.Context, key string) (time.Duration, bool) {
	r, ok := lc.l2.(TTLReader)
	if !ok {
		return lc.l1TTL, true
	}
	remaining, err := r.TTL(ctx, key)
	if err != nil {
		return 0, false
	}
	return lc.frontTTL(remaining), true
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.l1.DeleteByPattern(ctx, pattern)
	return lc.l2.DeleteByPattern(ctx, pattern)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	if ok, _ := lc.l1.Exists(ctx, keys...); ok {
		return true, nil
	}
	return lc.l2.Exists(ctx, keys...)
}

// Close closes both cache layers.
func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}

func (lc *LayeredCache) frontTTL(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.l1TTL {
		return expiration
	}
	return lc.l1TTL
}
