package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type point struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func TestMemoryCache_RoundTripStruct(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", point{Symbol: "CLZ25", Price: 76.2}, time.Minute))

	got, err := GetTyped[point](ctx, mc, "k")
	require.NoError(t, err)
	assert.Equal(t, point{Symbol: "CLZ25", Price: 76.2}, got)

	var s string
	require.NoError(t, mc.Set(ctx, "s", "plain", 0))
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "plain", s)
}

func TestMemoryCache_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryClock(clock.Now))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", 1, time.Minute))
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(61 * time.Second)
	var v int
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
	ok, _ = mc.Exists(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryMaxSize(2), WithMemoryClock(clock.Now))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	clock.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	clock.Advance(time.Second)

	var v int
	require.NoError(t, mc.Get(ctx, "a", &v)) // a becomes most recent
	clock.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestMemoryCache_DeleteByPattern(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	for _, k := range []string{"curve:CL:a", "curve:CL:b", "curve:NG:a", "quote:CLZ25"} {
		require.NoError(t, mc.Set(ctx, k, k, 0))
	}
	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("curve:CL:")))

	ok, _ := mc.Exists(ctx, "curve:CL:a", "curve:CL:b")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "curve:NG:a")
	assert.True(t, ok)
	ok, _ = mc.Exists(ctx, "quote:CLZ25")
	assert.True(t, ok)
}

func TestLayeredCache_PromotesFromSharedLayer(t *testing.T) {
	shared := NewMemoryCache(WithMemoryCleanup(0))
	lc := NewLayeredCache(shared, WithLayeredMemoryTTL(time.Minute))
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, shared.Set(ctx, "k", point{Symbol: "NGF26", Price: 3.1}, time.Hour))

	got, err := GetTyped[point](ctx, lc, "k")
	require.NoError(t, err)
	assert.Equal(t, 3.1, got.Price)

	// served from L1 after the shared copy is gone
	require.NoError(t, shared.Delete(ctx, "k"))
	got, err = GetTyped[point](ctx, lc, "k")
	require.NoError(t, err)
	assert.Equal(t, "NGF26", got.Symbol)
}

func TestLayeredCache_PromotionKeepsSharedExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC)}
	shared := NewMemoryCache(WithMemoryCleanup(0), WithMemoryClock(clock.Now))
	lc := NewLayeredCache(shared, WithLayeredMemoryTTL(time.Minute), WithLayeredClock(clock.Now))
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, shared.Set(ctx, "quote:CL:CLH25", point{Symbol: "CLH25", Price: 76.2}, 10*time.Second))
	_, err := GetTyped[point](ctx, lc, "quote:CL:CLH25")
	require.NoError(t, err)

	clock.Advance(11 * time.Second)
	_, err = GetTyped[point](ctx, lc, "quote:CL:CLH25")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestLayeredCache_PromotionCappedByMemoryTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC)}
	shared := NewMemoryCache(WithMemoryCleanup(0), WithMemoryClock(clock.Now))
	lc := NewLayeredCache(shared, WithLayeredMemoryTTL(time.Minute), WithLayeredClock(clock.Now))
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, shared.Set(ctx, "k", point{Symbol: "NGF26"}, time.Hour))
	_, err := GetTyped[point](ctx, lc, "k")
	require.NoError(t, err)

	ttl, err := lc.l1.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)
}

func TestMemoryCache_TTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "x", 30*time.Second))
	require.NoError(t, mc.Set(ctx, "forever", "x", 0))
	clock.Advance(10 * time.Second)

	ttl, err := mc.TTL(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, ttl)

	ttl, err = mc.TTL(ctx, "forever")
	require.NoError(t, err)
	assert.Zero(t, ttl)

	_, err = mc.TTL(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
