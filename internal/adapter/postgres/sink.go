package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/fire-danger-etl/internal/domain"
	_ "github.com/lib/pq" // registers the "postgres" driver
)

const createTable = `
	CREATE TABLE IF NOT EXISTS fire_danger_predictions (
		station    VARCHAR(32) NOT NULL,
		state      VARCHAR(8)  NOT NULL,
		obs_date   DATE        NOT NULL,
		lat        DOUBLE PRECISION NOT NULL,
		lon        DOUBLE PRECISION NOT NULL,
		max_temp   DOUBLE PRECISION NOT NULL,
		rainfall   DOUBLE PRECISION NOT NULL,
		wind_speed DOUBLE PRECISION NOT NULL,
		humidity   DOUBLE PRECISION NOT NULL,
		api        DOUBLE PRECISION,
		ffdi       DOUBLE PRECISION,
		ffdi_rate  VARCHAR(16),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (station, obs_date)
	);`

const upsertPrediction = `
	INSERT INTO fire_danger_predictions (
		station, state, obs_date, lat, lon,
		max_temp, rainfall, wind_speed, humidity,
		api, ffdi, ffdi_rate
	)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	ON CONFLICT (station, obs_date) DO UPDATE SET
		state = EXCLUDED.state,
		lat = EXCLUDED.lat,
		lon = EXCLUDED.lon,
		max_temp = EXCLUDED.max_temp,
		rainfall = EXCLUDED.rainfall,
		wind_speed = EXCLUDED.wind_speed,
		humidity = EXCLUDED.humidity,
		api = EXCLUDED.api,
		ffdi = EXCLUDED.ffdi,
		ffdi_rate = EXCLUDED.ffdi_rate,
		updated_at = now();`

// Sink upserts predicted station-days into Postgres, one row per station and
// date. It implements pipeline.PredictionSink.
type Sink struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to dsn and ensures the predictions table exists.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Sink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create predictions table: %w", err)
	}
	return &Sink{db: db, logger: logger}, nil
}

func (s *Sink) Name() string { return "postgres" }

// WritePredictions upserts all rows in one transaction; either every row is
// stored or none is.
func (s *Sink) WritePredictions(ctx context.Context, rows []domain.DailyObservation) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, upsertPrediction)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rowArgs(rows[i])...); err != nil {
			return fmt.Errorf("upsert %s: %w", rowKey(rows[i]), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit predictions: %w", err)
	}
	s.logger.Info("predictions stored", "table", "fire_danger_predictions", "rows", len(rows))
	return nil
}

func (s *Sink) Close() error {
	return s.db.Close()
}

// rowArgs returns the upsert parameters in placeholder order. Absent derived
// values become SQL NULL.
func rowArgs(row domain.DailyObservation) []any {
	var rating sql.NullString
	if row.Rating != "" {
		rating = sql.NullString{String: string(row.Rating), Valid: true}
	}
	return []any{
		row.Station,
		row.State,
		row.Date().Time(),
		row.Lat,
		row.Lon,
		row.MaxTemp,
		row.Rainfall,
		row.WindSpeed,
		row.Humidity,
		nullFloat(row.API),
		nullFloat(row.FFDI),
		rating,
	}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func rowKey(row domain.DailyObservation) string {
	return row.Station + " " + row.Date().String()
}
