package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"FuturesCast/internal/di"
	"FuturesCast/pkg/config"
	applogger "FuturesCast/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "futurescast",
		Short: "Commodity futures price forecasting service",
		Long: `futurescast forecasts commodity prices per calendar horizon from the futures curve,
adjusts them for scored risk factors and falls back to web search when no contract
covers a horizon.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	load := func() (*config.Config, error) {
		cfg, err := config.LoadWithEnv(configPath)
		if err != nil {
			return nil, fmt.Errorf("config load failed: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(newServeCmd(load), newForecastCmd(load), newContractsCmd())
	return root
}

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			app, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}
			app.Logger().Info("dependencies ready",
				applogger.String("quote_source", cfg.Quotes.Source),
				applogger.String("clickhouse_db", cfg.ClickHouse.Database),
				applogger.Strings("kafka_brokers", cfg.Kafka.Brokers),
			)
			// Run blocks until SIGINT/SIGTERM.
			return app.Run(cmd.Context())
		},
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
