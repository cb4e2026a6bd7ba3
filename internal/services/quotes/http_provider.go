// Package quotes implements QuoteProvider over a REST market data API, plus a
// read-through caching decorator.
package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"FuturesCast/internal/domain/models"
	domrepo "FuturesCast/internal/domain/repository"
	xhttp "FuturesCast/pkg/http"
	applogger "FuturesCast/pkg/logger"
	xutil "FuturesCast/pkg/util"
)

// HTTPConfig configures HTTPProvider.
type HTTPConfig struct {
	BaseURL         string
	APIKey          string
	APIKeyHeader    string
	QuotePath       string // joined with the symbol: {BaseURL}{QuotePath}/{symbol}
	Timeout         time.Duration
	RateLimit       float64
	Burst           int
	BreakerFailures uint32
	BreakerCooldown time.Duration
	SourceName      string
}

// HTTPProvider fetches contract quotes from a REST endpoint returning
// {"symbol","price","volume","open_interest","timestamp"}.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *xhttp.Client
	log    *applogger.Logger
}

func NewHTTPProvider(cfg HTTPConfig, log *applogger.Logger, opts ...xhttp.ClientOption) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "X-API-Key"
	}
	if cfg.QuotePath == "" {
		cfg.QuotePath = "/v1/futures/quotes"
	}
	if cfg.SourceName == "" {
		cfg.SourceName = "quotes_api"
	}
	if log == nil {
		log = applogger.Nop()
	}
	clientOpts := []xhttp.ClientOption{
		xhttp.WithTimeout(cfg.Timeout),
		xhttp.WithRateLimit(cfg.RateLimit, cfg.Burst),
		xhttp.WithCircuitBreaker("quotes:"+cfg.BaseURL, cfg.BreakerFailures, cfg.BreakerCooldown),
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: xhttp.NewClient(append(clientOpts, opts...)...),
		log:    log,
	}
}

type quoteResp struct {
	Symbol       string          `json:"symbol"`
	Price        *float64        `json:"price"`
	Volume       *float64        `json:"volume"`
	OpenInterest *float64        `json:"open_interest"`
	Timestamp    json.RawMessage `json:"timestamp"` // unix seconds or RFC3339
}

func (p *HTTPProvider) GetContract(ctx context.Context, symbol string) (models.Quote, error) {
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.QuotePath + "/" + url.PathEscape(symbol)
	headers := map[string]string{"Accept": "application/json"}
	if p.cfg.APIKey != "" {
		headers[p.cfg.APIKeyHeader] = p.cfg.APIKey
	}

	var r quoteResp
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     endpoint,
		Headers: headers,
	}, &r)
	if err != nil {
		if xhttp.StatusCode(err) == http.StatusNotFound {
			return models.Quote{}, fmt.Errorf("%w: %s", models.ErrContractNotFound, symbol)
		}
		p.log.Debug("quote request failed", applogger.String("contract", symbol), applogger.Error(err))
		return models.Quote{}, fmt.Errorf("%w: %s: %v", models.ErrProviderUnavailable, symbol, err)
	}
	if r.Price == nil {
		return models.Quote{}, fmt.Errorf("%w: %s has no price", models.ErrContractNotFound, symbol)
	}

	q := models.Quote{
		Symbol:       symbol,
		Price:        *r.Price,
		Volume:       r.Volume,
		OpenInterest: r.OpenInterest,
		Source:       p.cfg.SourceName,
	}
	if t, ok := xutil.ParseTime(strings.Trim(string(r.Timestamp), `"`)); ok {
		q.AsOf = t.UTC()
	}
	return q, nil
}

var _ domrepo.QuoteProvider = (*HTTPProvider)(nil)
