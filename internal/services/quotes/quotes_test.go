package quotes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FuturesCast/internal/domain/models"
	"FuturesCast/internal/service/cache"
	pkgcache "FuturesCast/pkg/cache"
	applogger "FuturesCast/pkg/logger"
)

func newQuoteServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("X-API-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch strings.TrimPrefix(r.URL.Path, "/v1/futures/quotes/") {
		case "CLZ25":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"symbol":"CLZ25","price":76.2,"volume":1200,"timestamp":1736899200}`))
		case "CLF26":
			_, _ = w.Write([]byte(`{"symbol":"CLF26"}`))
		case "CLX25":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPProvider_GetContract(t *testing.T) {
	var hits atomic.Int64
	srv := newQuoteServer(t, &hits)
	p := NewHTTPProvider(HTTPConfig{BaseURL: srv.URL, APIKey: "secret"}, applogger.Nop())

	q, err := p.GetContract(context.Background(), "CLZ25")
	require.NoError(t, err)
	assert.Equal(t, 76.2, q.Price)
	require.NotNil(t, q.Volume)
	assert.Equal(t, 1200.0, *q.Volume)
	assert.Nil(t, q.OpenInterest)
	assert.Equal(t, time.Unix(1736899200, 0).UTC(), q.AsOf)
	assert.Equal(t, "quotes_api", q.Source)
}

func TestHTTPProvider_ErrorMapping(t *testing.T) {
	var hits atomic.Int64
	srv := newQuoteServer(t, &hits)
	p := NewHTTPProvider(HTTPConfig{BaseURL: srv.URL, APIKey: "secret"}, applogger.Nop())

	_, err := p.GetContract(context.Background(), "CLX25")
	assert.ErrorIs(t, err, models.ErrContractNotFound)

	_, err = p.GetContract(context.Background(), "CLF26")
	assert.ErrorIs(t, err, models.ErrContractNotFound)

	_, err = p.GetContract(context.Background(), "CLH26")
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestHTTPProvider_BreakerIgnoresNotFound(t *testing.T) {
	var hits atomic.Int64
	srv := newQuoteServer(t, &hits)
	p := NewHTTPProvider(HTTPConfig{
		BaseURL:         srv.URL,
		APIKey:          "secret",
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	}, applogger.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.GetContract(ctx, "CLX25")
		require.ErrorIs(t, err, models.ErrContractNotFound)
	}
	assert.EqualValues(t, 3, hits.Load())

	for i := 0; i < 2; i++ {
		_, err := p.GetContract(ctx, "CLH26")
		require.ErrorIs(t, err, models.ErrProviderUnavailable)
	}
	_, err := p.GetContract(ctx, "CLZ25")
	require.ErrorIs(t, err, models.ErrProviderUnavailable)
	assert.EqualValues(t, 5, hits.Load(), "open breaker must not reach the server")
}

type countingProvider struct {
	calls atomic.Int64
	err   error
}

func (c *countingProvider) GetContract(_ context.Context, symbol string) (models.Quote, error) {
	c.calls.Add(1)
	if c.err != nil {
		return models.Quote{}, c.err
	}
	return models.Quote{Symbol: symbol, Price: 70, Source: "counting"}, nil
}

func newMarketCache() *cache.MarketCache {
	return cache.NewMarketCache(pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0)), nil, applogger.Nop())
}

func TestCachedProvider_ReadThrough(t *testing.T) {
	next := &countingProvider{}
	p := NewCachedProvider(next, newMarketCache())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q, err := p.GetContract(ctx, "CLZ25")
		require.NoError(t, err)
		assert.Equal(t, 70.0, q.Price)
	}
	assert.EqualValues(t, 1, next.calls.Load())
}

func TestCachedProvider_DoesNotCacheErrors(t *testing.T) {
	next := &countingProvider{err: errors.New("down")}
	p := NewCachedProvider(next, newMarketCache())

	_, err := p.GetContract(context.Background(), "CLZ25")
	require.Error(t, err)
	_, err = p.GetContract(context.Background(), "CLZ25")
	require.Error(t, err)
	assert.EqualValues(t, 2, next.calls.Load())
}

func TestCachedProvider_ClassByExpiration(t *testing.T) {
	p := NewCachedProvider(&countingProvider{}, nil)
	p.now = func() time.Time { return time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC) }

	assert.Equal(t, cache.ClassFrontMonth, p.classOf("CLG25"))
	assert.Equal(t, cache.ClassNearTerm, p.classOf("CLJ25"))
	assert.Equal(t, cache.ClassMedium, p.classOf("CLZ25"))
	assert.Equal(t, cache.ClassLongTerm, p.classOf("CLZ27"))
	assert.Equal(t, cache.ClassSpot, p.classOf("WTI"))
}
