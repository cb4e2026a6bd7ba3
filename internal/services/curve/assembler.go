// Package curve assembles futures term structures from per-contract quotes.
package curve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"FuturesCast/internal/domain/models"
	"FuturesCast/internal/domain/repository"
	"FuturesCast/internal/domain/service"
	"FuturesCast/internal/service/cache"
	"FuturesCast/internal/services/contracts"
	applogger "FuturesCast/pkg/logger"
)

const (
	defaultMaxContracts = 12
	defaultConcurrency  = 6
	yearsAhead          = 3
)

var _ service.CurveSource = (*Assembler)(nil)

// Assembler fetches every candidate contract of an underlying concurrently and joins them
// into a curve. One failing contract never aborts the curve.
type Assembler struct {
	quotes      repository.QuoteProvider
	cache       *cache.MarketCache
	validation  ValidationConfig
	concurrency int
	now         func() time.Time
	log         *applogger.Logger
}

type Option func(*Assembler)

func WithCache(c *cache.MarketCache) Option {
	return func(a *Assembler) { a.cache = c }
}

func WithValidation(cfg ValidationConfig) Option {
	return func(a *Assembler) { a.validation = cfg }
}

// WithConcurrency bounds in-flight quote requests.
func WithConcurrency(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.log = l
		}
	}
}

func NewAssembler(quotes repository.QuoteProvider, opts ...Option) *Assembler {
	a := &Assembler{
		quotes:      quotes,
		validation:  DefaultValidationConfig(),
		concurrency: defaultConcurrency,
		now:         time.Now,
		log:         applogger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type cachedCurve struct {
	Curve    *models.FuturesCurve `json:"curve"`
	Warnings []string             `json:"warnings,omitempty"`
}

type fetched struct {
	contract models.FuturesContract
	source   string
	err      error
}

// GetCurve returns Ok when every candidate resolved cleanly, Degraded when some contracts
// failed or validation raised warnings, and Failed when nothing usable came back.
func (a *Assembler) GetCurve(ctx context.Context, base string, opts service.CurveOptions) models.Result[*models.FuturesCurve] {
	b, err := contracts.NormalizeBase(base)
	if err != nil {
		return models.Failed[*models.FuturesCurve](err)
	}
	now := a.now().UTC()
	opts, err = a.normalize(opts, now)
	if err != nil {
		return models.Failed[*models.FuturesCurve](err)
	}

	key := cache.Key(cache.NamespaceCurve, b, signature(opts))
	var hit cachedCurve
	if a.cache.Get(ctx, key, &hit) && hit.Curve != nil {
		a.log.Debug("curve cache hit", applogger.String("symbol", b))
		return models.Degraded(hit.Curve, hit.Warnings)
	}

	symbols := a.candidates(b, opts, now)
	if len(symbols) == 0 {
		return models.Failed[*models.FuturesCurve](fmt.Errorf("%w: no unexpired contracts for %s", models.ErrNoDataAvailable, b))
	}

	results := a.fetchAll(ctx, symbols, now)
	if err := ctx.Err(); err != nil {
		return models.Failed[*models.FuturesCurve](err)
	}

	var (
		warnings []string
		points   []models.FuturesContract
		sources  []string
		seen     = map[string]bool{}
	)
	for i, r := range results {
		if r.err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", symbols[i], r.err))
			continue
		}
		points = append(points, r.contract)
		if r.source != "" && !seen[r.source] {
			seen[r.source] = true
			sources = append(sources, r.source)
		}
	}
	if len(points) == 0 {
		a.log.Warn("no contracts resolved", applogger.String("symbol", b), applogger.Int("candidates", len(symbols)))
		return models.Failed[*models.FuturesCurve](fmt.Errorf("%w: all %d contracts of %s failed",
			models.ErrNoDataAvailable, len(symbols), b))
	}
	SortByExpiration(points)
	sort.Strings(sources)

	if opts.ValidateCurve {
		vw, verr := ValidateCurve(points, a.validation)
		if verr != nil {
			a.log.Warn("curve rejected", applogger.String("symbol", b), applogger.Error(verr))
			// the next request refetches instead of rebuilding from the same quotes
			_ = a.cache.Invalidate(ctx, cache.Key(cache.NamespaceQuote, b))
			return models.Failed[*models.FuturesCurve](verr)
		}
		warnings = append(warnings, vw...)
	}

	curve := &models.FuturesCurve{
		UnderlyingSymbol: b,
		CurveDate:        now,
		Contracts:        points,
		Sources:          sources,
		LastUpdated:      now,
	}
	if opts.IncludeAnalytics {
		curve.Metrics = CalculateCurveMetrics(points)
	}

	a.cache.Set(ctx, key, cache.ClassCurve, cachedCurve{Curve: curve, Warnings: warnings})
	if len(warnings) > 0 {
		a.log.Warn("curve degraded",
			applogger.String("symbol", b),
			applogger.Int("contracts", len(points)),
			applogger.Int("warnings", len(warnings)))
	}
	return models.Degraded(curve, warnings)
}

func (a *Assembler) normalize(opts service.CurveOptions, now time.Time) (service.CurveOptions, error) {
	if len(opts.ContractMonths) == 0 {
		opts.ContractMonths = contracts.QuarterlyMonths
	}
	for _, m := range opts.ContractMonths {
		if _, err := contracts.ParseMonth(m); err != nil {
			return opts, err
		}
	}
	if opts.ContractYear == 0 {
		opts.ContractYear = now.Year()
	}
	if err := contracts.CheckYear(opts.ContractYear); err != nil {
		return opts, err
	}
	if opts.MaxContracts <= 0 {
		opts.MaxContracts = defaultMaxContracts
	}
	return opts, nil
}

// candidates lists unexpired symbols in expiration order, at most opts.MaxContracts.
func (a *Assembler) candidates(base string, opts service.CurveOptions, now time.Time) []string {
	type cand struct {
		symbol string
		exp    time.Time
	}
	var all []cand
	for year := opts.ContractYear; year < opts.ContractYear+yearsAhead; year++ {
		for _, m := range opts.ContractMonths {
			exp, err := contracts.ExpirationDate(base, m, year)
			if err != nil || exp.Before(now.Truncate(24*time.Hour)) {
				continue
			}
			sym, err := contracts.BuildSymbol(base, m, year)
			if err != nil {
				continue
			}
			all = append(all, cand{symbol: sym, exp: exp})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].exp.Before(all[j].exp) })

	out := make([]string, 0, opts.MaxContracts)
	seen := make(map[string]bool, len(all))
	for _, c := range all {
		if len(out) == opts.MaxContracts {
			break
		}
		if seen[c.symbol] {
			continue
		}
		seen[c.symbol] = true
		out = append(out, c.symbol)
	}
	return out
}

// fetchAll settles every fetch; result i belongs to symbols[i].
func (a *Assembler) fetchAll(ctx context.Context, symbols []string, now time.Time) []fetched {
	results := make([]fetched, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			results[i] = a.fetchOne(gctx, sym, now)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (a *Assembler) fetchOne(ctx context.Context, symbol string, now time.Time) fetched {
	_, exp, err := contracts.ExpirationForSymbol(symbol)
	if err != nil {
		return fetched{err: err}
	}
	q, err := a.quotes.GetContract(ctx, symbol)
	if err != nil {
		a.log.Debug("contract fetch failed", applogger.String("contract", symbol), applogger.Error(err))
		return fetched{err: err}
	}
	if q.Price <= 0 {
		return fetched{err: fmt.Errorf("non-positive price %.4f", q.Price)}
	}
	asOf := q.AsOf
	if asOf.IsZero() {
		asOf = now
	}
	return fetched{
		contract: models.FuturesContract{
			Symbol:           symbol,
			Maturity:         exp.Format(time.DateOnly),
			Price:            q.Price,
			Volume:           q.Volume,
			OpenInterest:     q.OpenInterest,
			DaysToExpiration: contracts.DaysBetween(now, exp),
			AsOf:             asOf,
		},
		source: q.Source,
	}
}

func signature(opts service.CurveOptions) string {
	months := make([]string, len(opts.ContractMonths))
	for i, m := range opts.ContractMonths {
		mo, _ := contracts.ParseMonth(m)
		months[i] = fmt.Sprintf("%02d", int(mo))
	}
	return fmt.Sprintf("%s|%d|%d|%t|%t", strings.Join(months, ","), opts.ContractYear,
		opts.MaxContracts, opts.ValidateCurve, opts.IncludeAnalytics)
}
