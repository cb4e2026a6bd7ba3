package quotes

import (
	"context"
	"errors"
	"time"

	"FuturesCast/internal/domain/models"
	domrepo "FuturesCast/internal/domain/repository"
	applogger "FuturesCast/pkg/logger"
)

// FailoverProvider reads from a live provider and archives every successful quote.
// When the live provider is unavailable the latest archived quote is served instead.
// A not-found answer from the live provider is authoritative and is not retried.
type FailoverProvider struct {
	primary      domrepo.QuoteProvider
	archive      domrepo.QuoteArchive
	storeTimeout time.Duration
	l            *applogger.Logger
}

func NewFailoverProvider(primary domrepo.QuoteProvider, archive domrepo.QuoteArchive, l *applogger.Logger) *FailoverProvider {
	if l == nil {
		l = applogger.Nop()
	}
	return &FailoverProvider{primary: primary, archive: archive, storeTimeout: 2 * time.Second, l: l}
}

func (p *FailoverProvider) GetContract(ctx context.Context, symbol string) (models.Quote, error) {
	q, err := p.primary.GetContract(ctx, symbol)
	if err == nil {
		p.store(ctx, q)
		return q, nil
	}
	if errors.Is(err, models.ErrContractNotFound) || ctx.Err() != nil {
		return models.Quote{}, err
	}

	archived, aerr := p.archive.GetContract(ctx, symbol)
	if aerr != nil {
		p.l.Warn("quote failover missed",
			applogger.String("symbol", symbol),
			applogger.Error(aerr),
		)
		return models.Quote{}, err
	}
	p.l.Info("quote served from archive",
		applogger.String("symbol", symbol),
		applogger.Error(err),
	)
	return archived, nil
}

func (p *FailoverProvider) store(ctx context.Context, q models.Quote) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.storeTimeout)
	defer cancel()
	if err := p.archive.StoreQuote(sctx, q); err != nil {
		p.l.Warn("archive quote failed",
			applogger.String("symbol", q.Symbol),
			applogger.Error(err),
		)
	}
}

var _ domrepo.QuoteProvider = (*FailoverProvider)(nil)
