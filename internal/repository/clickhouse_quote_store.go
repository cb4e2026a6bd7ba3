package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"FuturesCast/internal/domain/models"
	domrepo "FuturesCast/internal/domain/repository"
	pkgch "FuturesCast/pkg/clickhouse"
	applogger "FuturesCast/pkg/logger"
)

const defaultQuoteTable = "futures_quotes"

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// CHQuoteStore keeps contract quotes in ClickHouse. It serves the latest quote per symbol
// and archives quotes fetched from other providers.
type CHQuoteStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHQuoteStore(ch *pkgch.Client, table string, l *applogger.Logger) (*CHQuoteStore, error) {
	if table == "" {
		table = defaultQuoteTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse table name %q", table)
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHQuoteStore{db: ch.DB(), table: table, l: l}, nil
}

// Schema returns the idempotent DDL for the quote table.
func (s *CHQuoteStore) Schema() []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            ts            DateTime64(3, 'UTC'),
            symbol        LowCardinality(String),
            price         Float64,
            volume        Nullable(Float64),
            open_interest Nullable(Float64),
            source        LowCardinality(String)
        )
        ENGINE = ReplacingMergeTree
        ORDER BY (symbol, ts)
    `, s.table)}
}

func (s *CHQuoteStore) GetContract(ctx context.Context, symbol string) (models.Quote, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT ts, symbol, price, volume, open_interest, source
        FROM %s
        WHERE symbol = ?
        ORDER BY ts DESC
        LIMIT 1
    `, s.table)

	var (
		out    models.Quote
		vol    sql.NullFloat64
		oi     sql.NullFloat64
		source string
	)
	err := s.db.QueryRowContext(ctx, q, symbol).Scan(&out.AsOf, &out.Symbol, &out.Price, &vol, &oi, &source)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Quote{}, fmt.Errorf("%w: %s", models.ErrContractNotFound, symbol)
	}
	if err != nil {
		s.l.Error("clickhouse latest quote query error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return models.Quote{}, fmt.Errorf("%w: clickhouse: %v", models.ErrProviderUnavailable, err)
	}
	if vol.Valid {
		out.Volume = &vol.Float64
	}
	if oi.Valid {
		out.OpenInterest = &oi.Float64
	}
	out.Source = "clickhouse"
	if source != "" {
		out.Source = "clickhouse:" + source
	}
	out.AsOf = out.AsOf.UTC()

	s.l.Debug("clickhouse latest quote ok",
		applogger.String("symbol", symbol),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// StoreQuote appends one quote. A zero AsOf is stored as the current time.
func (s *CHQuoteStore) StoreQuote(ctx context.Context, q models.Quote) error {
	ts := q.AsOf
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	stmt := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, volume, open_interest, source) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	if _, err := s.db.ExecContext(ctx, stmt, ts, q.Symbol, q.Price, nullable(q.Volume), nullable(q.OpenInterest), q.Source); err != nil {
		return fmt.Errorf("store quote %s: %w", q.Symbol, err)
	}
	return nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

var _ domrepo.QuoteProvider = (*CHQuoteStore)(nil)
var _ domrepo.QuoteArchive = (*CHQuoteStore)(nil)
