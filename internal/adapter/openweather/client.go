package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/fire-danger-etl/internal/domain"
	"github.com/couchcryptid/fire-danger-etl/internal/observability"
)

// DefaultBaseURL is the OpenWeather 2.5 API root.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// Provider units are m/s for wind; station tables store km/h.
const msToKmh = 3.6

// RequestParams are the fixed query parameters shared by every request.
type RequestParams struct {
	APIKey  string
	Units   string
	BaseURL string
}

// Client implements domain.Forecaster using the OpenWeather One Call API.
type Client struct {
	params         RequestParams
	httpClient     *http.Client
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	metrics        *observability.Metrics
	logger         *slog.Logger
}

// NewClient creates an OpenWeather forecast client. Empty Units and BaseURL
// default to metric and DefaultBaseURL.
func NewClient(params RequestParams, timeout time.Duration, maxAttempts int, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if params.Units == "" {
		params.Units = "metric"
	}
	if params.BaseURL == "" {
		params.BaseURL = DefaultBaseURL
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Client{
		params: params,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxAttempts:    maxAttempts,
		initialBackoff: 200 * time.Millisecond,
		maxBackoff:     5 * time.Second,
		metrics:        metrics,
		logger:         logger,
	}
}

// Fetch returns the seven daily forecasts following today at the given
// coordinates. ref is only used for logging; the provider decides "today".
func (c *Client) Fetch(ctx context.Context, lat, lon float64, ref time.Time) ([]domain.DailyObservation, error) {
	query := url.Values{
		"appid":   {c.params.APIKey},
		"units":   {c.params.Units},
		"lat":     {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":     {strconv.FormatFloat(lon, 'f', -1, 64)},
		"exclude": {"current,minutely,hourly,alerts"},
	}
	fullURL := c.params.BaseURL + "/onecall?" + query.Encode()

	backoff := c.initialBackoff
	var lastErr *domain.FetchError
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		rows, err := c.doRequest(ctx, fullURL)
		if err == nil {
			c.metrics.ForecastRequests.WithLabelValues("success").Inc()
			return rows, nil
		}
		lastErr = err
		if !retryable(err) || attempt == c.maxAttempts || ctx.Err() != nil {
			break
		}
		c.metrics.ForecastRequests.WithLabelValues("retry").Inc()
		c.logger.Warn("forecast request failed, retrying",
			"lat", lat, "lon", lon,
			"reference_date", ref.Format(time.DateOnly),
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if !sleepWithContext(ctx, backoff) {
			break
		}
		backoff = nextBackoff(backoff, c.maxBackoff)
	}

	c.metrics.ForecastRequests.WithLabelValues("error").Inc()
	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]domain.DailyObservation, *domain.FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &domain.FetchError{Err: fmt.Errorf("create request: %w", err)}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ForecastAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &domain.FetchError{Err: fmt.Errorf("forecast request: %w", redactKey(err))}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.FetchError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("openweather API error: %s", body),
		}
	}

	var owResp response
	if err := json.NewDecoder(resp.Body).Decode(&owResp); err != nil {
		return nil, &domain.FetchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	rows, err := owResp.observations()
	if err != nil {
		return nil, &domain.FetchError{StatusCode: resp.StatusCode, Err: err}
	}
	return rows, nil
}

// retryable reports transport failures, rate limiting, and server errors.
func retryable(err *domain.FetchError) bool {
	switch {
	case err.StatusCode == 0:
		return !errors.Is(err.Err, context.Canceled)
	case err.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return err.StatusCode >= 500
	}
}

// redactKey strips the request URL (which carries appid) from transport errors.
func redactKey(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// OpenWeather One Call response types.

type response struct {
	TimezoneOffset int     `json:"timezone_offset"`
	Daily          []daily `json:"daily"`
}

type daily struct {
	Dt        int64    `json:"dt"`
	Temp      *temp    `json:"temp"`
	Humidity  *float64 `json:"humidity"`
	WindSpeed *float64 `json:"wind_speed"`
	Rain      *float64 `json:"rain"` // omitted on dry days
}

type temp struct {
	Max *float64 `json:"max"`
}

// observations maps daily[1..ForecastDays] to rows. daily[0] is today.
func (r response) observations() ([]domain.DailyObservation, error) {
	if len(r.Daily) < domain.ForecastDays+1 {
		return nil, fmt.Errorf("daily forecast has %d entries, need %d", len(r.Daily), domain.ForecastDays+1)
	}
	zone := time.FixedZone("", r.TimezoneOffset)

	rows := make([]domain.DailyObservation, 0, domain.ForecastDays)
	for i, d := range r.Daily[1 : domain.ForecastDays+1] {
		if d.Dt == 0 || d.Temp == nil || d.Temp.Max == nil || d.Humidity == nil || d.WindSpeed == nil {
			return nil, fmt.Errorf("daily[%d]: missing required field", i+1)
		}
		date := domain.DateOf(time.Unix(d.Dt, 0).In(zone))
		row := domain.DailyObservation{
			Year:      date.Year,
			Month:     date.Month,
			Day:       date.Day,
			MaxTemp:   *d.Temp.Max,
			Humidity:  *d.Humidity,
			WindSpeed: *d.WindSpeed * msToKmh,
		}
		if d.Rain != nil {
			row.Rainfall = *d.Rain
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
