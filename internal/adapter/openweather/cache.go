package openweather

import (
	"container/list"
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/fire-danger-etl/internal/domain"
	"github.com/couchcryptid/fire-danger-etl/internal/observability"
)

// CachedForecaster wraps a Forecaster with an in-memory LRU cache keyed by
// coordinates and reference date.
type CachedForecaster struct {
	inner   domain.Forecaster
	cache   *forecastCache
	metrics *observability.Metrics
}

// NewCachedForecaster creates a cache decorator around a forecaster.
func NewCachedForecaster(inner domain.Forecaster, maxEntries int, metrics *observability.Metrics) *CachedForecaster {
	return &CachedForecaster{
		inner:   inner,
		cache:   newForecastCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedForecaster) Fetch(ctx context.Context, lat, lon float64, ref time.Time) ([]domain.DailyObservation, error) {
	key := newCacheKey(lat, lon, ref)
	if rows, ok := c.cache.get(key); ok {
		c.metrics.ForecastCache.WithLabelValues("hit").Inc()
		return rows, nil
	}
	c.metrics.ForecastCache.WithLabelValues("miss").Inc()

	rows, err := c.inner.Fetch(ctx, lat, lon, ref)
	if err != nil {
		return nil, err
	}
	return c.cache.put(key, rows), nil
}

// cacheKey identifies one station-day request. Coordinates are held in
// micro-degrees so nearly equal floats share an entry.
type cacheKey struct {
	lat, lon int64
	day      domain.Date
}

func newCacheKey(lat, lon float64, ref time.Time) cacheKey {
	return cacheKey{
		lat: int64(math.Round(lat * 1e6)),
		lon: int64(math.Round(lon * 1e6)),
		day: domain.DateOf(ref),
	}
}

// forecastCache is a bounded, mutex-guarded LRU of forecast rows. Rows are
// copied on the way in and out, since callers stamp and mutate them.
type forecastCache struct {
	capacity int

	mu    sync.Mutex
	order *list.List // front is most recently used
	items map[cacheKey]*list.Element
}

type cachedForecast struct {
	key  cacheKey
	rows []domain.DailyObservation
}

func newForecastCache(capacity int) *forecastCache {
	return &forecastCache{
		capacity: max(capacity, 1),
		order:    list.New(),
		items:    make(map[cacheKey]*list.Element),
	}
}

func (c *forecastCache) get(key cacheKey) ([]domain.DailyObservation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return slices.Clone(el.Value.(*cachedForecast).rows), true
}

// put stores a copy of rows and returns another copy for the caller.
func (c *forecastCache) put(key cacheKey, rows []domain.DailyObservation) []domain.DailyObservation {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cachedForecast).rows = slices.Clone(rows)
		c.order.MoveToFront(el)
	} else {
		c.items[key] = c.order.PushFront(&cachedForecast{key: key, rows: slices.Clone(rows)})
	}

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cachedForecast).key)
	}
	return slices.Clone(rows)
}
