package quotes

import (
	"context"
	"time"

	"FuturesCast/internal/domain/models"
	domrepo "FuturesCast/internal/domain/repository"
	"FuturesCast/internal/service/cache"
	"FuturesCast/internal/services/contracts"
)

// CachedProvider decorates a QuoteProvider with MarketCache. The TTL class follows the
// contract's days to expiration; symbols that do not parse are cached as spot.
type CachedProvider struct {
	next  domrepo.QuoteProvider
	cache *cache.MarketCache
	now   func() time.Time
}

func NewCachedProvider(next domrepo.QuoteProvider, c *cache.MarketCache) *CachedProvider {
	return &CachedProvider{next: next, cache: c, now: time.Now}
}

func (p *CachedProvider) GetContract(ctx context.Context, symbol string) (models.Quote, error) {
	parsed, _ := contracts.ParseSymbol(symbol)
	key := cache.QuoteKey(parsed.Base, symbol)
	var q models.Quote
	if p.cache.Get(ctx, key, &q) {
		return q, nil
	}

	q, err := p.next.GetContract(ctx, symbol)
	if err != nil {
		return q, err
	}
	p.cache.Set(ctx, key, p.classOf(symbol), q)
	return q, nil
}

func (p *CachedProvider) classOf(symbol string) cache.DataClass {
	_, exp, err := contracts.ExpirationForSymbol(symbol)
	if err != nil {
		return cache.ClassSpot
	}
	return cache.ClassForDTE(contracts.DaysBetween(p.now(), exp))
}

var _ domrepo.QuoteProvider = (*CachedProvider)(nil)
