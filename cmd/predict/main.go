// Command predict computes the antecedent precipitation index, the McArthur
// forest fire danger index, and its rating band for every station table in
// DATASET_DIR, and writes the consolidated rows to OUTPUT_PATH. Rows are also
// published to Kafka when KAFKA_BROKERS is set and upserted into Postgres
// when DATABASE_URL is set.
//
// Usage:
//
//	go run ./cmd/predict [-no-color]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	kafkaadapter "github.com/couchcryptid/fire-danger-etl/internal/adapter/kafka"
	"github.com/couchcryptid/fire-danger-etl/internal/adapter/postgres"
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
		fmt.Fprintf(os.Stderr, "predict: %v\n", err)
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

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	sinks, closeSinks, err := openSinks(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	store := stationfile.NewStore(cfg.DatasetDir)
	runner := pipeline.New(store, nil, sinks, logger, metrics, cfg.Concurrency)

	return cli.Run(context.Background(), cfg, "fire_danger_predict", runner, prometheus.DefaultGatherer,
		runner.RunPredict, logger, os.Stdout)
}

// openSinks builds the CSV sink plus any optional sinks the config enables.
// The returned func closes every opened sink.
func openSinks(cfg *config.Config, logger *slog.Logger) ([]pipeline.PredictionSink, func(), error) {
	sinks := []pipeline.PredictionSink{stationfile.NewPredictionWriter(cfg.OutputPath)}
	var closers []func() error

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Error("sink close error", "error", err)
			}
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		w := kafkaadapter.NewWriter(cfg, logger)
		sinks = append(sinks, w)
		closers = append(closers, w.Close)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pg, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, pg)
		closers = append(closers, pg.Close)
		logger.Info("postgres sink enabled")
	}

	return sinks, closeAll, nil
}
