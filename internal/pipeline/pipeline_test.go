package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/fire-danger-etl/internal/domain"
	"github.com/couchcryptid/fire-danger-etl/internal/observability"
	"github.com/couchcryptid/fire-danger-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type memStore struct {
	mu      sync.Mutex
	ids     []string
	tables  map[string][]domain.DailyObservation
	loadErr map[string]error
	saveErr error
	saved   []string
	listErr error
}

func newMemStore() *memStore {
	return &memStore{
		tables:  make(map[string][]domain.DailyObservation),
		loadErr: make(map[string]error),
	}
}

func (m *memStore) add(id string, rows []domain.DailyObservation) {
	m.ids = append(m.ids, id)
	m.tables[id] = rows
}

func (m *memStore) List(_ context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return slices.Clone(m.ids), nil
}

func (m *memStore) Load(_ context.Context, id string) (*domain.StationTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadErr[id]; err != nil {
		return nil, err
	}
	return domain.NewStationTable(id, slices.Clone(m.tables[id])), nil
}

func (m *memStore) Save(_ context.Context, table *domain.StationTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.tables[table.ID] = slices.Clone(table.Rows)
	m.saved = append(m.saved, table.ID)
	return nil
}

type mockForecaster struct {
	mu    sync.Mutex
	calls int
	refs  []time.Time
	errAt map[float64]error // keyed by latitude
}

func (m *mockForecaster) Fetch(_ context.Context, lat, _ float64, ref time.Time) ([]domain.DailyObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.refs = append(m.refs, ref)
	if err := m.errAt[lat]; err != nil {
		return nil, err
	}
	start := domain.DateOf(ref).Time()
	rows := make([]domain.DailyObservation, domain.ForecastDays)
	for i := range rows {
		d := domain.DateOf(start.AddDate(0, 0, i+1))
		rows[i] = domain.DailyObservation{
			Year: d.Year, Month: d.Month, Day: d.Day,
			MaxTemp: 30, WindSpeed: 36, Humidity: 20, Rainfall: 0,
		}
	}
	return rows, nil
}

type mockSink struct {
	name  string
	err   error
	calls int
	rows  []domain.DailyObservation
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) WritePredictions(_ context.Context, rows []domain.DailyObservation) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.rows = slices.Clone(rows)
	return nil
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stationRows builds n consecutive days from 2020-08-18 for one station.
func stationRows(station string, lat float64, rainfall ...float64) []domain.DailyObservation {
	rows := make([]domain.DailyObservation, len(rainfall))
	for i, r := range rainfall {
		rows[i] = domain.DailyObservation{
			Year: 2020, Month: 8, Day: 18 + i,
			MaxTemp: 12.5, Rainfall: r, WindSpeed: 116.64, Humidity: 72,
			Lat: lat, Lon: 144.98, Station: station, State: "VIC",
		}
	}
	return rows
}

func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { domain.SetClock(nil) })
}

// --- prediction batch ---

func TestRunner_RunPredict_ConsolidatesInDiscoveryOrder(t *testing.T) {
	store := newMemStore()
	store.add("a.csv", stationRows("86282", -37.83, 1, 0, 2.8))
	store.add("b.xlsx", stationRows("83024", -36.74, 0, 0))
	sink := &mockSink{name: "csv"}
	metrics := newTestMetrics()

	r := pipeline.New(store, nil, []pipeline.PredictionSink{sink}, discardLogger(), metrics, 1)
	summary, err := r.RunPredict(context.Background())
	require.NoError(t, err)

	assert.Equal(t, pipeline.StagePredict, summary.Stage)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Processed)
	assert.Zero(t, summary.Skipped)
	assert.Equal(t, 5, summary.Rows)

	require.Len(t, sink.rows, 5)
	stations := make([]string, len(sink.rows))
	for i, row := range sink.rows {
		stations[i] = row.Station
		require.NotNil(t, row.API)
		require.NotNil(t, row.FFDI)
		assert.NotEmpty(t, row.Rating)
	}
	assert.Equal(t, []string{"86282", "86282", "86282", "83024", "83024"}, stations)
	assert.InDelta(t, 1.00, *sink.rows[0].API, 0.01)
	assert.InDelta(t, 0.85, *sink.rows[1].API, 0.01)
	assert.InDelta(t, 2.49, *sink.rows[0].FFDI, 0.01)
	assert.Equal(t, domain.RatingLow, sink.rows[0].Rating)

	assert.InDelta(t, 5.0, testutil.ToFloat64(metrics.RowsPredicted), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.Stations.WithLabelValues("predict", "processed")), 0)
}

func TestRunner_RunPredict_SkipsMalformedStation(t *testing.T) {
	store := newMemStore()
	store.add("a.csv", stationRows("86282", -37.83, 1, 0))
	store.add("bad.csv", nil)
	store.add("c.csv", stationRows("83024", -36.74, 3))
	malformed := &domain.MalformedRecordError{Row: 2, Field: "Rainfall", Err: errors.New("not a number")}
	store.loadErr["bad.csv"] = fmt.Errorf("load bad.csv: %w", malformed)
	sink := &mockSink{name: "csv"}
	metrics := newTestMetrics()

	r := pipeline.New(store, nil, []pipeline.PredictionSink{sink}, discardLogger(), metrics, 1)
	summary, err := r.RunPredict(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "bad.csv", summary.Failures[0].Station)
	var mre *domain.MalformedRecordError
	assert.ErrorAs(t, summary.Failures[0].Err, &mre)

	assert.Len(t, sink.rows, 3)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.Stations.WithLabelValues("predict", "skipped")), 0)
}

func TestRunner_RunPredict_EmptyTableContributesNothing(t *testing.T) {
	store := newMemStore()
	store.add("empty.csv", nil)
	sink := &mockSink{name: "csv"}

	r := pipeline.New(store, nil, []pipeline.PredictionSink{sink}, discardLogger(), newTestMetrics(), 1)
	summary, err := r.RunPredict(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, sink.calls)
	assert.Empty(t, sink.rows)
}

func TestRunner_RunPredict_SinkErrorTriesAllSinks(t *testing.T) {
	store := newMemStore()
	store.add("a.csv", stationRows("86282", -37.83, 1))
	broken := &mockSink{name: "kafka", err: errors.New("broker unavailable")}
	csv := &mockSink{name: "csv"}

	r := pipeline.New(store, nil, []pipeline.PredictionSink{broken, csv}, discardLogger(), newTestMetrics(), 1)
	summary, err := r.RunPredict(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka sink")
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, csv.calls)
	assert.Len(t, csv.rows, 1)
}

func TestRunner_RunPredict_ConcurrentKeepsOrder(t *testing.T) {
	store := newMemStore()
	var want []string
	for i := range 12 {
		station := fmt.Sprintf("%05d", 80000+i)
		store.add(station+".csv", stationRows(station, -30-float64(i), 1, 2))
		want = append(want, station, station)
	}
	sink := &mockSink{name: "csv"}

	r := pipeline.New(store, nil, []pipeline.PredictionSink{sink}, discardLogger(), newTestMetrics(), 4)
	summary, err := r.RunPredict(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Processed)

	got := make([]string, len(sink.rows))
	for i, row := range sink.rows {
		got[i] = row.Station
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("consolidated order mismatch (-want +got):\n%s", diff)
	}
}

func TestRunner_RunPredict_ListError(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("list dataset: permission denied")
	sink := &mockSink{name: "csv"}

	r := pipeline.New(store, nil, []pipeline.PredictionSink{sink}, discardLogger(), newTestMetrics(), 1)
	_, err := r.RunPredict(context.Background())
	require.Error(t, err)
	assert.Zero(t, sink.calls)
	assert.Error(t, r.CheckReadiness(context.Background()))
}

func TestRunner_RunPredict_CancelledContext(t *testing.T) {
	store := newMemStore()
	store.add("a.csv", stationRows("86282", -37.83, 1))
	store.add("b.csv", stationRows("83024", -36.74, 1))
	sink := &mockSink{name: "csv"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := pipeline.New(store, nil, []pipeline.PredictionSink{sink}, discardLogger(), newTestMetrics(), 1)
	summary, err := r.RunPredict(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, summary.Skipped)
	assert.ErrorIs(t, summary.Failures[0].Err, pipeline.ErrNotAttempted)
	assert.Zero(t, sink.calls)
}

// --- forecast batch ---

func TestRunner_RunForecast_AppendsAndSaves(t *testing.T) {
	ref := time.Date(2020, 8, 22, 9, 38, 17, 0, time.UTC)
	freezeClock(t, ref)

	store := newMemStore()
	store.add("a.csv", stationRows("86282", -37.83, 1, 0, 2.8, 4.4, 25.6))
	store.add("b.csv", stationRows("83024", -36.74, 0, 0, 0, 0, 0))
	fc := &mockForecaster{}

	r := pipeline.New(store, fc, nil, discardLogger(), newTestMetrics(), 1)
	summary, err := r.RunForecast(context.Background())
	require.NoError(t, err)

	assert.Equal(t, pipeline.StageForecast, summary.Stage)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 14, summary.Rows)
	assert.Equal(t, []string{"a.csv", "b.csv"}, store.saved)
	for _, got := range fc.refs {
		assert.True(t, ref.Equal(got))
	}

	rows := store.tables["a.csv"]
	require.Len(t, rows, 12)
	assert.Equal(t, domain.Date{Year: 2020, Month: 8, Day: 23}, rows[5].Date())
	for _, row := range rows[5:] {
		assert.Equal(t, "86282", row.Station)
		assert.Equal(t, "VIC", row.State)
		assert.Equal(t, -37.83, row.Lat)
		assert.Equal(t, 144.98, row.Lon)
	}
	assert.NoError(t, domain.NewStationTable("a.csv", rows).Validate())
	assert.NoError(t, r.CheckReadiness(context.Background()))
}

func TestRunner_RunForecast_LogsHistoryGap(t *testing.T) {
	freezeClock(t, time.Date(2020, 8, 24, 6, 0, 0, 0, time.UTC))

	store := newMemStore()
	store.add("a.csv", stationRows("86282", -37.83, 1, 0, 2.8)) // 2020-08-18..20
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := pipeline.New(store, &mockForecaster{}, nil, logger, newTestMetrics(), 1)
	_, err := r.RunForecast(context.Background())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "history_start=2020-08-18")
	assert.Contains(t, out, "history_end=2020-08-20")
	assert.Contains(t, out, "forecast leaves a gap")
	assert.Contains(t, out, "missing_days=4")
}

func TestRunner_RunForecast_SkipsFailedStation(t *testing.T) {
	freezeClock(t, time.Date(2020, 8, 22, 0, 0, 0, 0, time.UTC))

	store := newMemStore()
	store.add("a.csv", stationRows("86282", -37.83, 1))
	store.add("b.csv", stationRows("83024", -36.74, 0))
	unavailable := &domain.FetchError{StatusCode: http.StatusServiceUnavailable, Err: errors.New("try later")}
	fc := &mockForecaster{errAt: map[float64]error{-37.83: unavailable}}

	r := pipeline.New(store, fc, nil, discardLogger(), newTestMetrics(), 1)
	summary, err := r.RunForecast(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, "a.csv", summary.Failures[0].Station)
	assert.Equal(t, []string{"b.csv"}, store.saved)
	assert.Len(t, store.tables["a.csv"], 1, "failed station left untouched")
	assert.Equal(t, 2, fc.calls)
}

func TestRunner_RunForecast_FatalStopsFurtherRequests(t *testing.T) {
	freezeClock(t, time.Date(2020, 8, 22, 0, 0, 0, 0, time.UTC))

	store := newMemStore()
	store.add("a.csv", stationRows("86282", -37.83, 1))
	store.add("b.csv", stationRows("83024", -36.74, 0))
	store.add("c.csv", stationRows("85072", -38.11, 0))
	unauthorized := &domain.FetchError{StatusCode: http.StatusUnauthorized, Err: errors.New("invalid API key")}
	fc := &mockForecaster{errAt: map[float64]error{-37.83: unauthorized}}

	r := pipeline.New(store, fc, nil, discardLogger(), newTestMetrics(), 1)
	summary, err := r.RunForecast(context.Background())
	require.Error(t, err)

	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.True(t, fe.Fatal())

	assert.Equal(t, 1, fc.calls)
	assert.Equal(t, 3, summary.Total)
	assert.Zero(t, summary.Processed)
	assert.Equal(t, 3, summary.Skipped)
	assert.ErrorIs(t, summary.Failures[1].Err, pipeline.ErrNotAttempted)
	assert.ErrorIs(t, summary.Failures[2].Err, pipeline.ErrNotAttempted)
	assert.Empty(t, store.saved)
}

func TestRunner_RunForecast_SaveError(t *testing.T) {
	freezeClock(t, time.Date(2020, 8, 22, 0, 0, 0, 0, time.UTC))

	store := newMemStore()
	store.add("a.csv", stationRows("86282", -37.83, 1))
	store.saveErr = errors.New("disk full")

	r := pipeline.New(store, &mockForecaster{}, nil, discardLogger(), newTestMetrics(), 1)
	summary, err := r.RunForecast(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Rows)
}

func TestRunner_RunForecast_RequiresForecaster(t *testing.T) {
	r := pipeline.New(newMemStore(), nil, nil, discardLogger(), newTestMetrics(), 1)
	_, err := r.RunForecast(context.Background())
	require.Error(t, err)
}

// --- readiness and progress ---

func TestRunner_ReadinessAndProgress(t *testing.T) {
	store := newMemStore()
	store.add("a.csv", stationRows("86282", -37.83, 1))
	store.add("bad.csv", nil)
	store.loadErr["bad.csv"] = errors.New("unreadable")

	r := pipeline.New(store, nil, nil, discardLogger(), newTestMetrics(), 2)
	require.Error(t, r.CheckReadiness(context.Background()))

	_, err := r.RunPredict(context.Background())
	require.NoError(t, err)

	require.NoError(t, r.CheckReadiness(context.Background()))
	assert.Equal(t, pipeline.Progress{Stage: "predict", Running: false, Total: 2, Done: 2, Skipped: 1}, r.Progress())
}
