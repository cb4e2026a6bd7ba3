package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"FuturesCast/internal/di"
	"FuturesCast/internal/domain/models"
	"FuturesCast/internal/services/contracts"
	"FuturesCast/pkg/config"
	xhttp "FuturesCast/pkg/http"
)

type forecastFlags struct {
	symbol       string
	price        float64
	horizons     []int
	maxContracts int
	quarterly    bool
	noRisk       bool
	noInterval   bool
	noFallback   bool
	timeout      time.Duration
}

func (f forecastFlags) request(cfg *config.Config) models.ForecastRequest {
	risk, interval, fallback := !f.noRisk, !f.noInterval, !f.noFallback
	maxContracts := f.maxContracts
	if maxContracts <= 0 {
		maxContracts = cfg.Forecast.Curve.MaxContracts
	}
	return models.ForecastRequest{
		Symbol:                    f.symbol,
		CurrentPrice:              f.price,
		Currency:                  cfg.Forecast.Currency,
		Horizons:                  f.horizons,
		MaxRiskAdjustment:         cfg.Forecast.MaxRiskAdjustment,
		EnableRiskAdjustment:      &risk,
		IncludeConfidenceInterval: &interval,
		FallbackToWebSearch:       &fallback,
		QuarterlyOnly:             f.quarterly,
		MaxContracts:              maxContracts,
	}
}

// newForecastCmd runs one forecast through the full pipeline and prints the response as JSON.
func newForecastCmd(load func() (*config.Config, error)) *cobra.Command {
	var f forecastFlags
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast prices for one commodity and exit",
		Long: `Forecast prices for one commodity and print the response as JSON.

Example usage:
  futurescast forecast --symbol CL --price 75.2 --horizons 1,3,6,12
  futurescast forecast --symbol GC --price 2650 --horizons 6 --no-fallback`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			// stdout carries the JSON result
			if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
				cfg.Logging.Output = "stderr"
			}
			timeout := f.timeout
			if timeout <= 0 {
				timeout = cfg.Forecast.Timeout
			}
			req := f.request(cfg)
			if err := xhttp.JoinValidationErrors(xhttp.ValidateStruct(cmd.Context(), &req)); err != nil {
				return fmt.Errorf("invalid forecast request: %w", err)
			}

			app, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}
			defer func() { _ = app.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			resp, err := app.Forecaster().Forecast(ctx, req)
			if err != nil {
				return err
			}
			return writeJSON(cmd, resp)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.symbol, "symbol", "", "base commodity symbol, e.g. CL")
	fl.Float64Var(&f.price, "price", 0, "current spot price")
	fl.IntSliceVar(&f.horizons, "horizons", []int{1, 3, 6, 12}, "forecast horizons in months")
	fl.IntVar(&f.maxContracts, "max-contracts", 0, "contracts to fetch for the curve (0 uses config)")
	fl.BoolVar(&f.quarterly, "quarterly", false, "map horizons onto quarterly contracts only")
	fl.BoolVar(&f.noRisk, "no-risk", false, "skip risk adjustment")
	fl.BoolVar(&f.noInterval, "no-interval", false, "omit confidence intervals")
	fl.BoolVar(&f.noFallback, "no-fallback", false, "disable the web search fallback")
	fl.DurationVar(&f.timeout, "timeout", 0, "overall timeout (0 uses config)")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

// newContractsCmd maps horizons onto contracts offline; it needs no configuration.
func newContractsCmd() *cobra.Command {
	var (
		symbol    string
		horizons  []int
		quarterly bool
	)
	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "Show which contract covers each horizon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := contracts.DefaultMappingOptions()
			opts.QuarterlyOnly = quarterly
			mappings, err := contracts.NewMapper().MapHorizonsToContracts(symbol, horizons, opts)
			if err != nil {
				return err
			}

			out := make([]models.ContractMapping, 0, len(mappings))
			for _, h := range horizons {
				if m, ok := mappings[h]; ok {
					out = append(out, m)
				}
			}
			return writeJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "base commodity symbol, e.g. CL")
	cmd.Flags().IntSliceVar(&horizons, "horizons", []int{1, 3, 6, 12}, "horizons in months")
	cmd.Flags().BoolVar(&quarterly, "quarterly", false, "quarterly contracts only")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
