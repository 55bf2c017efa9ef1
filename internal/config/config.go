package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all batch settings, populated from environment variables with
// an optional YAML file (CONFIG_FILE) supplying values beneath them.
type Config struct {
	DatasetDir string
	OutputPath string

	// OpenWeather forecast provider.
	OpenWeatherAPIKey   string
	OpenWeatherBaseURL  string
	ForecastTimeout     time.Duration
	ForecastMaxAttempts int
	ForecastCacheSize   int

	Concurrency int

	LogLevel        string
	LogFormat       string
	HTTPAddr        string
	PushgatewayURL  string
	ShutdownTimeout time.Duration

	// Optional prediction sinks.
	KafkaBrokers []string
	KafkaTopic   string
	DatabaseURL  string
}

// fileConfig mirrors Config for the YAML overlay. Durations are strings so
// they read like the environment ("10s").
type fileConfig struct {
	DatasetDir string `yaml:"dataset_dir"`
	OutputPath string `yaml:"output_path"`
	OpenWeather struct {
		APIKey      string `yaml:"api_key"`
		BaseURL     string `yaml:"base_url"`
		Timeout     string `yaml:"timeout"`
		MaxAttempts string `yaml:"max_attempts"`
		CacheSize   string `yaml:"cache_size"`
	} `yaml:"openweather"`
	Concurrency string `yaml:"concurrency"`
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	HTTPAddr        string `yaml:"http_addr"`
	PushgatewayURL  string `yaml:"pushgateway_url"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	Kafka           struct {
		Brokers string `yaml:"brokers"`
		Topic   string `yaml:"topic"`
	} `yaml:"kafka"`
	DatabaseURL string `yaml:"database_url"`
}

// Load reads configuration from environment variables, applying file values
// and then defaults where unset.
func Load() (*Config, error) {
	fc, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	forecastTimeout, err := parsePositiveDuration("FORECAST_TIMEOUT", setting("FORECAST_TIMEOUT", fc.OpenWeather.Timeout, "10s"))
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", setting("SHUTDOWN_TIMEOUT", fc.ShutdownTimeout, "10s"))
	if err != nil {
		return nil, err
	}
	maxAttempts, err := parseBoundedInt("FORECAST_MAX_ATTEMPTS", setting("FORECAST_MAX_ATTEMPTS", fc.OpenWeather.MaxAttempts, "3"), 1, 10)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseBoundedInt("FORECAST_CACHE_SIZE", setting("FORECAST_CACHE_SIZE", fc.OpenWeather.CacheSize, "256"), 1, 100000)
	if err != nil {
		return nil, err
	}
	concurrency, err := parseBoundedInt("CONCURRENCY", setting("CONCURRENCY", fc.Concurrency, "1"), 1, 64)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatasetDir:          setting("DATASET_DIR", fc.DatasetDir, "dataset/forecasted"),
		OutputPath:          setting("OUTPUT_PATH", fc.OutputPath, "dataset/output/bushfire_prediction.csv"),
		OpenWeatherAPIKey:   setting("OPENWEATHER_API_KEY", fc.OpenWeather.APIKey, ""),
		OpenWeatherBaseURL:  strings.TrimRight(setting("OPENWEATHER_BASE_URL", fc.OpenWeather.BaseURL, "https://api.openweathermap.org/data/2.5"), "/"),
		ForecastTimeout:     forecastTimeout,
		ForecastMaxAttempts: maxAttempts,
		ForecastCacheSize:   cacheSize,
		Concurrency:         concurrency,
		LogLevel:            setting("LOG_LEVEL", fc.Log.Level, "info"),
		LogFormat:           setting("LOG_FORMAT", fc.Log.Format, "json"),
		HTTPAddr:            setting("HTTP_ADDR", fc.HTTPAddr, ""),
		PushgatewayURL:      setting("PUSHGATEWAY_URL", fc.PushgatewayURL, ""),
		ShutdownTimeout:     shutdownTimeout,
		KafkaBrokers:        parseBrokers(setting("KAFKA_BROKERS", fc.Kafka.Brokers, "")),
		KafkaTopic:          setting("KAFKA_TOPIC", fc.Kafka.Topic, "fire-danger-predictions"),
		DatabaseURL:         setting("DATABASE_URL", fc.DatabaseURL, ""),
	}

	if cfg.DatasetDir == "" {
		return nil, errors.New("DATASET_DIR is required")
	}
	if cfg.OutputPath == "" {
		return nil, errors.New("OUTPUT_PATH is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// RequireForecastProvider reports an error when the forecast batch cannot
// reach the provider with the loaded settings.
func (c *Config) RequireForecastProvider() error {
	if c.OpenWeatherAPIKey == "" {
		return errors.New("OPENWEATHER_API_KEY is required for the forecast batch")
	}
	return nil
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read CONFIG_FILE %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse CONFIG_FILE %s: %w", path, err)
	}
	return fc, nil
}

// setting resolves a value: environment first, then the config file, then the default.
func setting(key, fileValue, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if fileValue != "" {
		return fileValue
	}
	return def
}

func parsePositiveDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func parseBoundedInt(key, s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s %q: must be between %d and %d", key, s, lo, hi)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
