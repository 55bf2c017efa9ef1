package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/fire-danger-etl/internal/domain"
	"github.com/couchcryptid/fire-danger-etl/internal/observability"
	"golang.org/x/sync/errgroup"
)

// StationStore lists, reads, and persists station tables.
type StationStore interface {
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, id string) (*domain.StationTable, error)
	Save(ctx context.Context, table *domain.StationTable) error
}

// PredictionSink receives the consolidated prediction rows of a batch.
type PredictionSink interface {
	Name() string
	WritePredictions(ctx context.Context, rows []domain.DailyObservation) error
}

// Batch stages, used as log and metric labels.
const (
	StageForecast = "forecast"
	StagePredict  = "predict"
)

// ErrNotAttempted marks stations skipped because the batch stopped early.
var ErrNotAttempted = errors.New("station not attempted")

// StationFailure records why a station was skipped.
type StationFailure struct {
	Station string
	Err     error
}

// Summary reports the outcome of one batch.
type Summary struct {
	Stage     string
	Total     int
	Processed int
	Skipped   int
	// Rows is the number of station-days appended (forecast) or predicted.
	Rows     int
	Failures []StationFailure
	Duration time.Duration
}

// Progress is a point-in-time view of the running batch.
type Progress struct {
	Stage   string `json:"stage"`
	Running bool   `json:"running"`
	Total   int    `json:"total"`
	Done    int    `json:"done"`
	Skipped int    `json:"skipped"`
}

// Runner executes the forecast and prediction batches over a station store.
type Runner struct {
	store       StationStore
	forecaster  domain.Forecaster
	sinks       []PredictionSink
	logger      *slog.Logger
	metrics     *observability.Metrics
	concurrency int
	ready       atomic.Bool

	mu       sync.Mutex
	progress Progress
}

// New creates a Runner. forecaster may be nil when only RunPredict is used;
// sinks may be empty when only RunForecast is used.
func New(store StationStore, forecaster domain.Forecaster, sinks []PredictionSink, logger *slog.Logger, metrics *observability.Metrics, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		store:       store,
		forecaster:  forecaster,
		sinks:       sinks,
		logger:      logger,
		metrics:     metrics,
		concurrency: concurrency,
	}
}

// CheckReadiness returns nil once a batch has completed, or an error
// describing why the runner is not yet ready.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no batch has completed yet")
	}
	return nil
}

// Progress returns a snapshot of the current (or last) batch.
func (r *Runner) Progress() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// RunForecast appends the provider's 7-day forecast to every station table
// and saves each table in place. A station that fails is logged and skipped.
// If the provider rejects the credentials no further stations are requested
// and the returned error wraps the *domain.FetchError.
func (r *Runner) RunForecast(ctx context.Context) (Summary, error) {
	if r.forecaster == nil {
		return Summary{Stage: StageForecast}, errors.New("forecast batch requires a forecaster")
	}
	began := time.Now()
	ids, err := r.store.List(ctx)
	if err != nil {
		return Summary{Stage: StageForecast}, err
	}

	ref := domain.ReferenceDate()
	r.logger.Info("forecast batch started",
		"stations", len(ids),
		"reference_date", ref.Format(time.DateOnly),
		"concurrency", r.concurrency,
	)

	var fatal atomic.Pointer[domain.FetchError]
	results := r.runStations(ctx, StageForecast, ids, &fatal, func(ctx context.Context, id string) stationResult {
		n, err := r.forecastStation(ctx, id, ref)
		var fe *domain.FetchError
		if errors.As(err, &fe) && fe.Fatal() {
			fatal.CompareAndSwap(nil, fe)
		}
		return stationResult{rows: n, err: err}
	})

	summary := r.summarize(StageForecast, ids, results)
	for i := range results {
		summary.Rows += results[i].rows
	}
	summary.Duration = time.Since(began)
	r.finish(summary)

	if fe := fatal.Load(); fe != nil {
		return summary, fmt.Errorf("forecast provider rejected credentials: %w", fe)
	}
	return summary, ctx.Err()
}

// RunPredict computes API, FFDI, and the rating band for every station table
// and writes the consolidated rows, in station discovery order, to every
// sink. Sink failures are returned after all sinks have been tried.
func (r *Runner) RunPredict(ctx context.Context) (Summary, error) {
	began := time.Now()
	ids, err := r.store.List(ctx)
	if err != nil {
		return Summary{Stage: StagePredict}, err
	}
	r.logger.Info("prediction batch started", "stations", len(ids), "concurrency", r.concurrency)

	results := r.runStations(ctx, StagePredict, ids, nil, func(ctx context.Context, id string) stationResult {
		rows, err := r.predictStation(ctx, id)
		return stationResult{rows: len(rows), err: err, predicted: rows}
	})

	summary := r.summarize(StagePredict, ids, results)
	var consolidated []domain.DailyObservation
	for i := range results {
		consolidated = append(consolidated, results[i].predicted...)
	}
	summary.Rows = len(consolidated)

	if err := ctx.Err(); err != nil {
		summary.Duration = time.Since(began)
		r.finish(summary)
		return summary, err
	}

	var sinkErrs []error
	for _, sink := range r.sinks {
		if err := sink.WritePredictions(ctx, consolidated); err != nil {
			r.logger.Error("write predictions failed", "sink", sink.Name(), "error", err)
			sinkErrs = append(sinkErrs, fmt.Errorf("%s sink: %w", sink.Name(), err))
			continue
		}
		r.logger.Info("predictions written", "sink", sink.Name(), "rows", len(consolidated))
	}
	summary.Duration = time.Since(began)
	r.finish(summary)
	return summary, errors.Join(sinkErrs...)
}

type stationResult struct {
	rows      int
	err       error
	predicted []domain.DailyObservation
}

// runStations applies fn to every station, at most r.concurrency at a time.
// Results are indexed like ids. Once ctx is done or fatal is set, stations
// not yet started are marked ErrNotAttempted.
func (r *Runner) runStations(ctx context.Context, stage string, ids []string, fatal *atomic.Pointer[domain.FetchError], fn func(context.Context, string) stationResult) []stationResult {
	r.start(stage, len(ids))

	stopped := func() bool {
		return ctx.Err() != nil || (fatal != nil && fatal.Load() != nil)
	}

	results := make([]stationResult, len(ids))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		if stopped() {
			results[i] = stationResult{err: ErrNotAttempted}
			r.advance(false)
			continue
		}
		g.Go(func() error {
			if stopped() {
				results[i] = stationResult{err: ErrNotAttempted}
				r.advance(false)
				return nil
			}
			res := fn(ctx, id)
			if res.err != nil {
				r.logger.Warn("station skipped", "station", id, "stage", stage, "error", res.err)
			} else {
				r.logger.Info("station completed", "station", id, "stage", stage, "rows", res.rows)
			}
			results[i] = res
			r.advance(res.err == nil)
			return nil
		})
	}
	_ = g.Wait() // station tasks never return errors
	return results
}

func (r *Runner) summarize(stage string, ids []string, results []stationResult) Summary {
	s := Summary{Stage: stage, Total: len(ids)}
	for i := range results {
		if results[i].err == nil {
			s.Processed++
			r.metrics.Stations.WithLabelValues(stage, "processed").Inc()
			continue
		}
		s.Skipped++
		s.Failures = append(s.Failures, StationFailure{Station: ids[i], Err: results[i].err})
		r.metrics.Stations.WithLabelValues(stage, "skipped").Inc()
	}
	return s
}

func (r *Runner) start(stage string, total int) {
	r.metrics.BatchRunning.Set(1)
	r.mu.Lock()
	r.progress = Progress{Stage: stage, Running: true, Total: total}
	r.mu.Unlock()
}

func (r *Runner) advance(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Done++
	if !ok {
		r.progress.Skipped++
	}
}

// finish records the batch duration and marks the runner ready.
func (r *Runner) finish(summary Summary) {
	r.mu.Lock()
	r.progress.Running = false
	r.mu.Unlock()

	r.metrics.BatchRunning.Set(0)
	r.metrics.BatchDuration.WithLabelValues(summary.Stage).Observe(summary.Duration.Seconds())
	r.ready.Store(true)
	r.logger.Info("batch complete",
		"stage", summary.Stage,
		"total", summary.Total,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"rows", summary.Rows,
		"duration", summary.Duration,
	)
}
