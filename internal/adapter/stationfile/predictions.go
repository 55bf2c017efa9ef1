package stationfile

import (
	"context"
	"fmt"
	"io"

	"github.com/couchcryptid/fire-danger-etl/internal/domain"
)

// PredictionWriter writes the consolidated prediction rows to a single CSV
// file. It implements pipeline.PredictionSink.
type PredictionWriter struct {
	path string
}

// NewPredictionWriter creates a writer for path. Parent directories are
// created on write.
func NewPredictionWriter(path string) *PredictionWriter {
	return &PredictionWriter{path: path}
}

func (w *PredictionWriter) Name() string { return "csv" }

// WritePredictions replaces the output file with rows under the full
// prediction header. An empty batch still writes the header.
func (w *PredictionWriter) WritePredictions(ctx context.Context, rows []domain.DailyObservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := writeAtomic(w.path, func(out io.Writer) error { return writeCSV(out, rows, true) })
	if err != nil {
		return fmt.Errorf("write predictions %s: %w", w.path, err)
	}
	return nil
}

// ReadPredictions loads a consolidated prediction CSV. Rows are returned
// as written; no per-station validation is applied.
func ReadPredictions(path string) ([]domain.DailyObservation, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("read predictions %s: %w", path, err)
	}
	rows, err := decodeRows(records, true)
	if err != nil {
		return nil, fmt.Errorf("read predictions %s: %w", path, err)
	}
	return rows, nil
}
