package pipeline

import (
	"context"
	"time"

	"github.com/couchcryptid/fire-danger-etl/internal/domain"
)

// forecastStation loads one table, appends the forecast following ref, and
// saves it. The table is only saved after a successful append.
func (r *Runner) forecastStation(ctx context.Context, id string, ref time.Time) (int, error) {
	table, err := r.store.Load(ctx, id)
	if err != nil {
		return 0, err
	}
	if last, ok := table.LastDate(); ok {
		r.logger.Debug("station history window",
			"station", id,
			"rows", table.Len(),
			"history_start", table.Rows[0].Date().String(),
			"history_end", last.String(),
		)
		if missing := table.MissingDays(ref); missing > 0 {
			r.logger.Warn("station history ends before reference date, forecast leaves a gap",
				"station", id,
				"history_end", last.String(),
				"reference_date", ref.Format(time.DateOnly),
				"missing_days", missing,
			)
		}
	}

	appended, err := domain.ExtendWithForecast(ctx, table, r.forecaster, ref, r.logger)
	if err != nil {
		return 0, err
	}
	if err := r.store.Save(ctx, table); err != nil {
		return 0, err
	}
	return appended, nil
}

// predictStation loads one table and computes its derived columns. The rows
// returned are the table's own; callers own them after the call.
func (r *Runner) predictStation(ctx context.Context, id string) ([]domain.DailyObservation, error) {
	table, err := r.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	table.ComputeAPI()
	if err := table.ComputeFFDI(); err != nil {
		return nil, err
	}

	r.metrics.RowsPredicted.Add(float64(table.Len()))
	for i := range table.Rows {
		r.metrics.FFDIRatings.WithLabelValues(string(table.Rows[i].Rating)).Inc()
	}
	return table.Rows, nil
}
