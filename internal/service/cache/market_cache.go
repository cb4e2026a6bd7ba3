// Package cache provides the market data cache shared by quote providers and the curve
// assembler. Entries expire per data class: quotes close to expiration move faster than
// back-month quotes, and assembled curves get their own lifetime.
package cache

import (
	"context"
	"errors"
	"time"

	pkgcache "FuturesCast/pkg/cache"
	applogger "FuturesCast/pkg/logger"
)

// DataClass selects the TTL of a cache entry.
type DataClass string

const (
	ClassSpot       DataClass = "spot"
	ClassFrontMonth DataClass = "front_month"
	ClassNearTerm   DataClass = "near_term"
	ClassMedium     DataClass = "medium"
	ClassLongTerm   DataClass = "long_term"
	ClassCurve      DataClass = "curve"
)

// TTLPolicy maps each data class to a lifetime. Missing classes fall back to Spot.
type TTLPolicy map[DataClass]time.Duration

func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		ClassSpot:       time.Minute,
		ClassFrontMonth: 5 * time.Minute,
		ClassNearTerm:   15 * time.Minute,
		ClassMedium:     time.Hour,
		ClassLongTerm:   4 * time.Hour,
		ClassCurve:      5 * time.Minute,
	}
}

// TTL returns the lifetime of class.
func (p TTLPolicy) TTL(class DataClass) time.Duration {
	if d, ok := p[class]; ok && d > 0 {
		return d
	}
	if d, ok := p[ClassSpot]; ok && d > 0 {
		return d
	}
	return time.Minute
}

// ClassForDTE buckets a contract by days to expiration.
func ClassForDTE(dte int) DataClass {
	switch {
	case dte <= 30:
		return ClassFrontMonth
	case dte <= 90:
		return ClassNearTerm
	case dte <= 365:
		return ClassMedium
	default:
		return ClassLongTerm
	}
}

// MarketCache is a read-through cache keyed by (namespace, signature). It is safe for
// concurrent use as long as the backing Service is.
type MarketCache struct {
	backend pkgcache.Service
	policy  TTLPolicy
	log     *applogger.Logger
}

func NewMarketCache(backend pkgcache.Service, policy TTLPolicy, log *applogger.Logger) *MarketCache {
	if policy == nil {
		policy = DefaultTTLPolicy()
	}
	return &MarketCache{backend: backend, policy: policy, log: log}
}

// Namespaces shared by the quote decorator and the curve assembler.
const (
	NamespaceQuote = "quote"
	NamespaceCurve = "curve"
)

// Key builds a cache key from a namespace and its parameters.
func Key(namespace string, params ...interface{}) string {
	return pkgcache.GenerateKeyWithParams(namespace, params...)
}

// QuoteKey keys a contract quote under its base so a whole base can be invalidated at once.
// An empty base is used for symbols that do not parse as contracts.
func QuoteKey(base, symbol string) string {
	if base == "" {
		return Key(NamespaceQuote, symbol)
	}
	return Key(NamespaceQuote, base, symbol)
}

// Get loads key into dest. ok=false on a miss or any backend error; backend errors are
// logged and otherwise treated as a miss.
func (c *MarketCache) Get(ctx context.Context, key string, dest interface{}) bool {
	if c == nil || c.backend == nil {
		return false
	}
	err := c.backend.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, pkgcache.ErrCacheMiss) && c.log != nil {
		c.log.Warn("market cache get failed", applogger.String("key", key), applogger.Error(err))
	}
	return false
}

// Set stores value under the TTL of class. Failures are logged only.
func (c *MarketCache) Set(ctx context.Context, key string, class DataClass, value interface{}) {
	if c == nil || c.backend == nil {
		return
	}
	if err := c.backend.Set(ctx, key, value, c.policy.TTL(class)); err != nil && c.log != nil {
		c.log.Warn("market cache set failed",
			applogger.String("key", key),
			applogger.String("class", string(class)),
			applogger.Error(err))
	}
}

// Invalidate drops every entry under namespace, e.g. Key(NamespaceQuote, "CL").
func (c *MarketCache) Invalidate(ctx context.Context, namespace string) error {
	if c == nil || c.backend == nil {
		return nil
	}
	if err := c.backend.DeleteByPattern(ctx, pkgcache.BuildPattern(namespace+":")); err != nil {
		if c.log != nil {
			c.log.Warn("market cache invalidate failed", applogger.String("namespace", namespace), applogger.Error(err))
		}
		return err
	}
	return nil
}

// Policy exposes the active TTL policy.
func (c *MarketCache) Policy() TTLPolicy { return c.policy }

func (c *MarketCache) Close() error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Close()
}
