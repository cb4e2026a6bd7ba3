package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"FuturesCast/internal/domain/models"
	"FuturesCast/pkg/config"
	xhttp "FuturesCast/pkg/http"
	applogger "FuturesCast/pkg/logger"
)

// Forecaster runs one forecast request end to end.
type Forecaster interface {
	Forecast(ctx context.Context, req models.ForecastRequest) (*models.ForecastResponse, error)
}

type closer struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	handler    xhttp.Handler
	forecaster Forecaster
	checks     map[string]xhttp.HealthCheck
	closers    []closer
	httpServer *xhttp.Server
}

type Option func(*App)

// WithHealthCheck exposes a dependency check on /healthz.
func WithHealthCheck(name string, check xhttp.HealthCheck) Option {
	return func(a *App) {
		if check != nil {
			a.checks[name] = check
		}
	}
}

// WithCloser registers a resource released on shutdown, in reverse registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, closer{name: name, c: c})
		}
	}
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, handler xhttp.Handler, fc Forecaster, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{
		cfg:        cfg,
		log:        l,
		handler:    handler,
		forecaster: fc,
		checks:     map[string]xhttp.HealthCheck{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Forecaster returns the forecasting pipeline for one-shot use outside the HTTP server.
func (a *App) Forecaster() Forecaster { return a.forecaster }

// Logger returns the application logger.
func (a *App) Logger() *applogger.Logger { return a.log }

// Run starts the HTTP server and blocks until ctx is cancelled or a shutdown
// signal arrives, then releases every resource.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []xhttp.ServerOption{
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORS),
		xhttp.WithSlowThreshold(a.cfg.Server.SlowThreshold),
		xhttp.WithLogger(a.log),
	}
	for name, check := range a.checks {
		opts = append(opts, xhttp.WithHealthCheck(name, check))
	}
	a.httpServer = xhttp.NewServer(a.handler, opts...)

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return errors.Join(err, a.Close())
	}
	a.log.Info("futurescast started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("quote_source", a.cfg.Quotes.Source),
		applogger.String("cache", a.cfg.Cache.Backend),
		applogger.Bool("risk_enabled", a.cfg.RiskEnabled()),
		applogger.Bool("kafka_enabled", a.cfg.Kafka.Enabled),
	)

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// Addr returns the HTTP listener address while the app is running.
func (a *App) Addr() string {
	if a.httpServer == nil || a.httpServer.Addr() == nil {
		return ""
	}
	return a.httpServer.Addr().String()
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

// Close releases registered resources. It is safe to call once the server is stopped
// or was never started.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
