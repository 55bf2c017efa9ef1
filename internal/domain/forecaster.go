package domain

import (
	"context"
	"time"
)

// ForecastDays is the number of future days appended per forecast run.
const ForecastDays = 7

// Forecaster retrieves daily forecasts for a location.
type Forecaster interface {
	// Fetch returns ForecastDays rows for the days following ref, in date
	// order, without station identity or derived columns. On error no rows
	// are returned.
	Fetch(ctx context.Context, lat, lon float64, ref time.Time) ([]DailyObservation, error)
}
