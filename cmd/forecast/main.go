// Command forecast appends the 7-day OpenWeather forecast to every station
// table in DATASET_DIR, saving each table in place.
//
// Usage:
//
//	OPENWEATHER_API_KEY=... go run ./cmd/forecast [-no-color]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/couchcryptid/fire-danger-etl/internal/adapter/openweather"
	"github.com/couchcryptid/fire-danger-etl/internal/adapter/stationfile"
	"github.com/couchcryptid/fire-danger-etl/internal/cli"
	"github.com/couchcryptid/fire-danger-etl/internal/config"
	"github.com/couchcryptid/fire-danger-etl/internal/observability"
	"github.com/couchcryptid/fire-danger-etl/internal/pipeline"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	noColor := flag.Bool("no-color", false, "disable colored output")
	flag.Parse()
	if *noColor {
		color.NoColor = true
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "forecast: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := cli.LoadEnv(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireForecastProvider(); err != nil {
		return err
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	client := openweather.NewClient(openweather.RequestParams{
		APIKey:  cfg.OpenWeatherAPIKey,
		Units:   "metric",
		BaseURL: cfg.OpenWeatherBaseURL,
	}, cfg.ForecastTimeout, cfg.ForecastMaxAttempts, metrics, logger)
	forecaster := openweather.NewCachedForecaster(client, cfg.ForecastCacheSize, metrics)
	logger.Info("openweather forecaster configured",
		"base_url", cfg.OpenWeatherBaseURL,
		"timeout", cfg.ForecastTimeout,
		"max_attempts", cfg.ForecastMaxAttempts,
		"cache_size", cfg.ForecastCacheSize,
	)

	store := stationfile.NewStore(cfg.DatasetDir)
	runner := pipeline.New(store, forecaster, nil, logger, metrics, cfg.Concurrency)

	return cli.Run(context.Background(), cfg, "fire_danger_forecast", runner, prometheus.DefaultGatherer,
		runner.RunForecast, logger, os.Stdout)
}
