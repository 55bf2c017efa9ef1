package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fire_danger"

// Metrics holds the Prometheus counters, histograms, and gauges for the batch runner.
type Metrics struct {
	Stations      *prometheus.CounterVec // labels: stage={forecast,predict}, outcome={processed,skipped}
	RowsPredicted prometheus.Counter
	FFDIRatings   *prometheus.CounterVec // labels: rating
	BatchRunning  prometheus.Gauge

	// Batch timing.
	BatchDuration *prometheus.HistogramVec // labels: stage

	// Forecast provider metrics.
	ForecastRequests    *prometheus.CounterVec // labels: outcome={success,error,retry}
	ForecastCache       *prometheus.CounterVec // labels: result={hit,miss}
	ForecastAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all batch metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Stations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_total",
			Help:      "Station tables handled per batch stage, by outcome.",
		}, []string{"stage", "outcome"}),
		RowsPredicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_predicted_total",
			Help:      "Station-days with a computed FFDI.",
		}),
		FFDIRatings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ffdi_rating_total",
			Help:      "Predicted station-days by FFDI rating band.",
		}, []string{"rating"}),
		BatchRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_running",
			Help:      "1 while a batch is in progress, 0 otherwise.",
		}),
		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of a complete batch run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		ForecastRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_requests_total",
			Help:      "Forecast provider requests by outcome.",
		}, []string{"outcome"}),
		ForecastCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_cache_total",
			Help:      "Forecast cache lookups by result.",
		}, []string{"result"}),
		ForecastAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_api_duration_seconds",
			Help:      "Forecast provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Stations,
		m.RowsPredicted,
		m.FFDIRatings,
		m.BatchRunning,
		m.BatchDuration,
		m.ForecastRequests,
		m.ForecastCache,
		m.ForecastAPIDuration,
	}
}
