package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ExtendWithForecast fetches the forecast for the table's station and appends
// it. The table is only modified after a successful fetch, so a provider
// failure leaves it exactly as loaded.
func ExtendWithForecast(ctx context.Context, table *StationTable, forecaster Forecaster, ref time.Time, logger *slog.Logger) (int, error) {
	if forecaster == nil {
		return 0, errors.New("no forecaster configured")
	}
	id, ok := table.Identity()
	if !ok {
		return 0, &MalformedRecordError{Row: -1, Field: "Station", Err: errors.New("empty table has no station identity")}
	}

	rows, err := forecaster.Fetch(ctx, id.Lat, id.Lon, ref)
	if err != nil {
		return 0, err
	}

	appended, err := table.AppendForecast(rows)
	if err != nil {
		return appended, err
	}
	if skipped := len(rows) - appended; skipped > 0 {
		logger.Warn("forecast days already present, skipped",
			"station", id.Station,
			"table", table.ID,
			"skipped", skipped,
		)
	}
	return appended, nil
}
