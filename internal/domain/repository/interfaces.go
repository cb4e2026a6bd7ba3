package repository

import (
	"context"

	"FuturesCast/internal/domain/models"
)

// QuoteProvider fetches the latest quote for one futures contract symbol.
// Implementations return models.ErrContractNotFound or models.ErrProviderUnavailable.
type QuoteProvider interface {
	GetContract(ctx context.Context, symbol string) (models.Quote, error)
}

// QuoteArchive persists quotes so they can be served when the live provider is down.
type QuoteArchive interface {
	QuoteProvider
	StoreQuote(ctx context.Context, q models.Quote) error
}

// ForecastPublisher emits finished forecasts to downstream consumers.
type ForecastPublisher interface {
	PublishForecast(ctx context.Context, resp *models.ForecastResponse) error
	Close() error
}

type Metrics interface {
	RecordProviderCall(provider, outcome string)
	RecordForecast(symbol, methodology string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
